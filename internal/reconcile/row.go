// Package reconcile joins daily revenue records with cash-drawer entries and
// computes the per-day and per-period totals used to spot discrepancies.
//
// Every function in this package is pure: it works on the slices it is given,
// never keeps state between calls and never fails. Malformed values have
// already been coerced to zero by the core package.
package reconcile

import (
	"github.com/shopspring/decimal"

	"caisse/internal/core"
)

// Status is the balance classification of a merged row.
type Status string

const (
	StatusBalanced   Status = "balanced"
	StatusUnbalanced Status = "unbalanced"
	StatusPending    Status = "pending"
)

// Tolerance is the largest difference still considered balanced (exclusive).
var Tolerance = decimal.New(1, -2)

// Row is the reconciliation unit: one revenue day and its cash entry, if any.
type Row struct {
	core.RevenueRecord

	// Entry is the zero CashEntry when HasEntry is false.
	Entry    core.CashEntry
	HasEntry bool
	Key      string

	TotalPrestaB2B decimal.Decimal
	TotalDepenses  decimal.Decimal
	// TotalSaisie is the amount accounted for:
	// depenses + especes + cbSansContact + cbClassique - prestaB2B.
	TotalSaisie decimal.Decimal
	// Difference is TotalSaisie - TTC; negative means a deficit.
	Difference decimal.Decimal
	Status     Status
}

// ID is the persisted cash entry id, or "" when the entry does not exist yet.
func (r Row) ID() string {
	return r.Entry.ID
}

// NewRow builds a row for a revenue record. entry may be nil for a day whose
// cash entry has not been entered yet.
func NewRow(rec core.RevenueRecord, entry *core.CashEntry) Row {
	row := Row{
		RevenueRecord: rec,
		Key:           core.DateKey(rec.Date),
	}
	if entry != nil {
		row.Entry = entry.Clone()
		row.HasEntry = true
	}

	row.TotalPrestaB2B = core.SumItems(row.Entry.PrestaB2B)
	row.TotalDepenses = core.SumItems(row.Entry.Depenses)
	row.TotalSaisie = AccountedFor(row.Entry)
	row.Difference = row.TotalSaisie.Sub(rec.TTC)
	row.Status = Classify(rec.TTC, row.TotalSaisie)
	if !row.HasEntry {
		row.Status = StatusPending
	}
	return row
}

// AccountedFor returns the amount a cash entry accounts for. Transfers are
// not part of it. B2B invoices are subtracted: they are already counted in
// the day's TTC but are not collected through the drawer.
func AccountedFor(e core.CashEntry) decimal.Decimal {
	return core.SumItems(e.Depenses).
		Add(e.Especes).
		Add(e.CBSansContact).
		Add(e.CBClassique).
		Sub(core.SumItems(e.PrestaB2B))
}

// Classify compares the expected TTC with the amount accounted for. No
// judgement is rendered while either side is zero.
func Classify(ttc, saisie decimal.Decimal) Status {
	if ttc.IsZero() || saisie.IsZero() {
		return StatusPending
	}
	if Equal(ttc, saisie) {
		return StatusBalanced
	}
	return StatusUnbalanced
}

// Equal reports whether two amounts differ by less than Tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}
