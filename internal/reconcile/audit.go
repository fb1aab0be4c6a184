package reconcile

import (
	"caisse/internal/core"
)

// OffsetCandidate is a cash entry that looks like it was recorded with the
// legacy convention (one day before its revenue day).
type OffsetCandidate struct {
	Entry      core.CashEntry
	EntryKey   string
	RevenueKey string
}

// AuditDayOffset lists orphan cash entries (see Merge) whose next day is a
// revenue day without its own cash entry. Nothing is changed: the result is
// meant to be reviewed and back-filled as a data migration.
func AuditDayOffset(revenues []core.RevenueRecord, entries []core.CashEntry) []OffsetCandidate {
	orphans := Merge(revenues, entries).Orphans
	if len(orphans) == 0 {
		return nil
	}
	revenueKeys := make(map[string]bool, len(revenues))
	for _, r := range revenues {
		if k := core.DateKey(r.Date); k != "" {
			revenueKeys[k] = true
		}
	}
	entryKeys := make(map[string]bool, len(entries))
	for _, e := range entries {
		if k := core.DateKey(e.Date); k != "" {
			entryKeys[k] = true
		}
	}

	var out []OffsetCandidate
	claimed := map[string]bool{}
	for _, e := range orphans {
		d, ok := core.ParseDay(e.Date)
		if !ok {
			continue
		}
		next := d.AddDays(1).Key()
		if !revenueKeys[next] || entryKeys[next] || claimed[next] {
			continue
		}
		claimed[next] = true
		out = append(out, OffsetCandidate{Entry: e, EntryKey: d.Key(), RevenueKey: next})
	}
	return out
}
