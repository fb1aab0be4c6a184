package reconcile

import (
	"errors"
	"fmt"

	"caisse/internal/core"
)

// ErrInvalidPeriod is returned by Period.Validate.
var ErrInvalidPeriod = errors.New("invalid period")

// Period is an inclusive range of calendar days.
type Period struct {
	From core.Date
	To   core.Date
}

// Month returns the period covering a calendar month.
func Month(year, month int) Period {
	from := core.NewDate(year, month, 1)
	return Period{From: from, To: core.Date{Time: from.AddDate(0, 1, -1)}}
}

// Year returns the period covering a calendar year.
func Year(year int) Period {
	return Period{From: core.NewDate(year, 1, 1), To: core.NewDate(year, 12, 31)}
}

// Range returns the period between two days, both included.
func Range(from, to core.Date) Period {
	return Period{From: from, To: to}
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidPeriod)
	}
	if p.To.Before(p.From.Time) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidPeriod, p.To.ISO(), p.From.ISO())
	}
	return nil
}

// Contains reports whether a day falls inside the period.
func (p Period) Contains(d core.Date) bool {
	return !d.Before(p.From.Time) && !d.After(p.To.Time)
}

// Days is the number of calendar days in the period.
func (p Period) Days() int {
	if p.Validate() != nil {
		return 0
	}
	return int(p.To.Sub(p.From.Time).Hours()/24) + 1
}

// Key identifies the period in caches and logs.
func (p Period) Key() string {
	return p.From.ISO() + ".." + p.To.ISO()
}

func (p Period) String() string { return p.Key() }

// FilterRevenue keeps the records whose date falls inside the period.
// Records with an unparseable date are dropped.
func FilterRevenue(records []core.RevenueRecord, p Period) []core.RevenueRecord {
	out := make([]core.RevenueRecord, 0, len(records))
	for _, r := range records {
		if d, ok := core.ParseDay(r.Date); ok && p.Contains(d) {
			out = append(out, r)
		}
	}
	return out
}

// FilterEntries keeps the cash entries whose date falls inside the period.
func FilterEntries(entries []core.CashEntry, p Period) []core.CashEntry {
	out := make([]core.CashEntry, 0, len(entries))
	for _, e := range entries {
		if d, ok := core.ParseDay(e.Date); ok && p.Contains(d) {
			out = append(out, e)
		}
	}
	return out
}
