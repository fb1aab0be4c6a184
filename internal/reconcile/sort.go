package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"caisse/internal/core"
)

// SortByDay orders rows by day of month, ascending. Rows whose date cannot
// be parsed go last. The sort is stable.
func SortByDay(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		di, oki := core.ParseDay(rows[i].Date)
		dj, okj := core.ParseDay(rows[j].Date)
		if oki != okj {
			return oki
		}
		return di.Day() < dj.Day()
	})
}

// SortByDateDesc orders rows by date, most recent first.
func SortByDateDesc(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Key > rows[j].Key
	})
}

// ErrInvalidSort is returned by ParseSortOrder for an unknown order.
var ErrInvalidSort = errors.New("invalid sort order")

// SortOrder names a presentation order of rows.
type SortOrder string

const (
	// SortNone keeps revenue input order.
	SortNone     SortOrder = ""
	SortDay      SortOrder = "day"
	SortDateDesc SortOrder = "date_desc"
)

// ParseSortOrder accepts "", "day" and "date_desc".
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case SortNone, SortDay, SortDateDesc:
		return o, nil
	default:
		return SortNone, fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
}

// Sorted returns the rows in order o. rows itself is left as is, so a view
// shared between callers can be sorted per request.
func (o SortOrder) Sorted(rows []Row) []Row {
	if o == SortNone {
		return rows
	}
	out := append([]Row(nil), rows...)
	switch o {
	case SortDay:
		SortByDay(out)
	case SortDateDesc:
		SortByDateDesc(out)
	}
	return out
}
