package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Date is a calendar day, always midnight UTC.
	Date struct {
		time.Time
	}

	// LineItem is one labelled amount of a cash entry (B2B invoice or expense).
	LineItem struct {
		Label string          `validate:"required,max=120"`
		Value decimal.Decimal `validate:"gte=0"`
	}

	// RevenueRecord is the day's turnover as reported by the revenue source.
	// It is read-only to this system.
	RevenueRecord struct {
		Date      string
		TTC       decimal.Decimal
		HT        decimal.Decimal
		TVA       decimal.Decimal
		HTByRate  TaxBreakdown // ca-ht
		TVAByRate TaxBreakdown // ca-tva
	}

	// CashEntry is one cash-drawer reconciliation session. ID is assigned by
	// the persistence layer and is empty until the entry has been created.
	CashEntry struct {
		ID            string
		Date          string          `validate:"required,datekey"`
		PrestaB2B     []LineItem      `validate:"dive"`
		Depenses      []LineItem      `validate:"dive"`
		Virement      decimal.Decimal `validate:"gte=0"`
		CBClassique   decimal.Decimal `validate:"gte=0"`
		CBSansContact decimal.Decimal `validate:"gte=0"`
		Especes       decimal.Decimal `validate:"gte=0"`
	}
)

// ErrInvalidDate is returned by Date.Validate for the zero date.
var ErrInvalidDate = errors.New("invalid date")

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Key returns the canonical YYYY/MM/DD join key.
func (d Date) Key() string { return d.Format(KeyLayout) }

// ISO returns the YYYY-MM-DD form.
func (d Date) ISO() string { return d.Format(ISOLayout) }

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date { return Date{Time: d.AddDate(0, 0, n)} }

// SumItems adds up the values of a list of line items.
func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return total
}

// HasID reports whether the entry has been persisted.
func (e CashEntry) HasID() bool {
	return strings.TrimSpace(e.ID) != ""
}

// HasPayment reports whether at least one payment channel is non-zero.
func (e CashEntry) HasPayment() bool {
	return !e.Virement.IsZero() || !e.CBClassique.IsZero() ||
		!e.CBSansContact.IsZero() || !e.Especes.IsZero()
}

// Clone returns a copy that shares no slices with e.
func (e CashEntry) Clone() CashEntry {
	out := e
	out.PrestaB2B = append([]LineItem(nil), e.PrestaB2B...)
	out.Depenses = append([]LineItem(nil), e.Depenses...)
	return out
}
