package reconcile

import (
	"caisse/internal/core"
)

// Result is the output of Merge.
type Result struct {
	// Rows holds exactly one row per input revenue record, in input order.
	Rows []Row
	// DuplicateEntryKeys lists date keys carried by more than one cash
	// entry. The last entry in input order won.
	DuplicateEntryKeys []string
	// DuplicateRevenueKeys lists date keys carried by more than one revenue record.
	DuplicateRevenueKeys []string
	// Orphans are cash entries whose date matched no revenue record. They
	// are not part of the view.
	Orphans []core.CashEntry
}

// Merge joins revenue records with cash entries on their canonical date key.
//
// Cash entries and revenue records are matched on the same calendar day; no
// day offset is applied. Entries with an unparseable date never match.
func Merge(revenues []core.RevenueRecord, entries []core.CashEntry) Result {
	byKey := make(map[string]int, len(entries))
	var res Result
	dupEntries := map[string]bool{}
	for i, e := range entries {
		key := core.DateKey(e.Date)
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; seen && !dupEntries[key] {
			dupEntries[key] = true
			res.DuplicateEntryKeys = append(res.DuplicateEntryKeys, key)
		}
		byKey[key] = i
	}

	used := make(map[int]bool, len(entries))
	seenRevenue := make(map[string]bool, len(revenues))
	dupRevenue := map[string]bool{}
	res.Rows = make([]Row, 0, len(revenues))
	for _, rec := range revenues {
		key := core.DateKey(rec.Date)
		if key != "" {
			if seenRevenue[key] && !dupRevenue[key] {
				dupRevenue[key] = true
				res.DuplicateRevenueKeys = append(res.DuplicateRevenueKeys, key)
			}
			seenRevenue[key] = true
		}

		var entry *core.CashEntry
		if idx, ok := byKey[key]; ok && key != "" {
			entry = &entries[idx]
			used[idx] = true
		}
		res.Rows = append(res.Rows, NewRow(rec, entry))
	}

	for i, e := range entries {
		if used[i] {
			continue
		}
		key := core.DateKey(e.Date)
		if idx, ok := byKey[key]; ok && idx != i {
			// superseded duplicate, not an orphan
			continue
		}
		res.Orphans = append(res.Orphans, e)
	}
	return res
}
