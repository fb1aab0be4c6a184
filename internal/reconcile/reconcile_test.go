package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMergeBalancedDay(t *testing.T) {
	revenues := []core.RevenueRecord{{Date: "2024-01-15", TTC: d("500")}}
	entries := []core.CashEntry{{
		ID:            "e1",
		Date:          "2024-01-15",
		Depenses:      []core.LineItem{{Label: "Fournitures", Value: d("20")}},
		CBClassique:   d("200"),
		CBSansContact: d("150"),
		Especes:       d("130"),
	}}

	res := Merge(revenues, entries)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.True(t, row.HasEntry)
	assert.Equal(t, "e1", row.ID())
	assert.Equal(t, "2024/01/15", row.Key)
	assert.True(t, row.TotalSaisie.Equal(d("500")))
	assert.True(t, row.Difference.IsZero())
	assert.Equal(t, StatusBalanced, row.Status)
}

func TestMergeUnbalancedDay(t *testing.T) {
	revenues := []core.RevenueRecord{{Date: "2024-01-16", TTC: d("500")}}
	entries := []core.CashEntry{{ID: "e2", Date: "2024/01/16", CBClassique: d("100"), Especes: d("70")}}

	row := Merge(revenues, entries).Rows[0]
	assert.True(t, row.TotalSaisie.Equal(d("170")))
	assert.True(t, row.Difference.Equal(d("-330")))
	assert.Equal(t, StatusUnbalanced, row.Status)
}

func TestMergeB2BSubtracted(t *testing.T) {
	revenues := []core.RevenueRecord{{Date: "2024-01-17", TTC: d("1200")}}
	entries := []core.CashEntry{{
		ID:          "e3",
		Date:        "2024-01-17",
		PrestaB2B:   []core.LineItem{{Label: "Société X", Value: d("1000")}},
		CBClassique: d("200"),
	}}

	row := Merge(revenues, entries).Rows[0]
	assert.True(t, row.TotalPrestaB2B.Equal(d("1000")))
	assert.True(t, row.TotalSaisie.Equal(d("-800")))
	assert.Equal(t, StatusUnbalanced, row.Status)
}

func TestMergeMissingEntryIsPending(t *testing.T) {
	revenues := []core.RevenueRecord{{Date: "2024-01-18", TTC: d("300")}}

	row := Merge(revenues, nil).Rows[0]
	assert.False(t, row.HasEntry)
	assert.Equal(t, "", row.ID())
	assert.True(t, row.TotalSaisie.IsZero())
	assert.True(t, row.Difference.Equal(d("-300")))
	assert.Equal(t, StatusPending, row.Status)
}

func TestMergeKeepsRevenueOrderAndCompleteness(t *testing.T) {
	revenues := []core.RevenueRecord{
		{Date: "2024-01-03", TTC: d("10")},
		{Date: "2024-01-01", TTC: d("20")},
		{Date: "not a date", TTC: d("30")},
		{Date: "2024-01-02", TTC: d("40")},
	}
	entries := []core.CashEntry{
		{ID: "a", Date: "2024-01-01T00:00:00.000Z", Especes: d("20")},
		{ID: "x", Date: "garbage", Especes: d("30")},
		{ID: "o", Date: "2024-02-01", Especes: d("5")},
	}

	res := Merge(revenues, entries)
	require.Len(t, res.Rows, len(revenues))
	for i, row := range res.Rows {
		assert.Equal(t, revenues[i].Date, row.Date)
	}
	assert.Equal(t, "a", res.Rows[1].ID())
	assert.False(t, res.Rows[2].HasEntry, "unparseable dates never match")
	require.Len(t, res.Orphans, 2)
	assert.Equal(t, "x", res.Orphans[0].ID)
	assert.Equal(t, "o", res.Orphans[1].ID)
}

func TestMergeDuplicateEntriesLastWins(t *testing.T) {
	revenues := []core.RevenueRecord{{Date: "2024-03-01", TTC: d("50")}}
	entries := []core.CashEntry{
		{ID: "first", Date: "2024-03-01", Especes: d("10")},
		{ID: "second", Date: "01/03/2024", Especes: d("50")},
	}

	res := Merge(revenues, entries)
	assert.Equal(t, "second", res.Rows[0].ID())
	assert.Equal(t, []string{"2024/03/01"}, res.DuplicateEntryKeys)
	assert.Empty(t, res.Orphans)
}

func TestMergeDoesNotAliasEntries(t *testing.T) {
	entries := []core.CashEntry{{ID: "a", Date: "2024-01-01", Depenses: []core.LineItem{{Label: "x", Value: d("1")}}}}
	row := Merge([]core.RevenueRecord{{Date: "2024-01-01"}}, entries).Rows[0]
	row.Entry.Depenses[0].Label = "changed"
	assert.Equal(t, "x", entries[0].Depenses[0].Label)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ttc    string
		saisie string
		want   Status
	}{
		{"exact", "100", "100", StatusBalanced},
		{"within tolerance", "100", "100.009", StatusBalanced},
		{"at tolerance", "100", "100.01", StatusUnbalanced},
		{"deficit", "100", "90", StatusUnbalanced},
		{"zero ttc", "0", "90", StatusPending},
		{"zero saisie", "100", "0", StatusPending},
		{"negative saisie", "100", "-50", StatusUnbalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(d(tt.ttc), d(tt.saisie)))
		})
	}
}

func TestAccountedForExcludesVirement(t *testing.T) {
	e := core.CashEntry{Virement: d("999"), Especes: d("1")}
	assert.True(t, AccountedFor(e).Equal(d("1")))
}

func TestAggregate(t *testing.T) {
	revenues := []core.RevenueRecord{
		{Date: "2024-01-15", TTC: d("500"), HT: d("420"), TVA: d("80"),
			HTByRate:  core.RateBreakdown(map[string]decimal.Decimal{"20": d("300"), "10": d("120")}),
			TVAByRate: core.RateBreakdown(map[string]decimal.Decimal{"20": d("60"), "10": d("20")})},
		{Date: "2024-01-16", TTC: d("500"), HT: d("416.67"), TVA: d("83.33"),
			HTByRate: core.SimpleBreakdown(d("416.67"))},
		{Date: "2024-01-18", TTC: d("300")},
	}
	entries := []core.CashEntry{
		{ID: "e1", Date: "2024-01-15", Depenses: []core.LineItem{{Label: "f", Value: d("20")}},
			CBClassique: d("200"), CBSansContact: d("150"), Especes: d("130")},
		{ID: "e2", Date: "2024-01-16", CBClassique: d("100"), Especes: d("70"), Virement: d("40")},
	}
	rows := Merge(revenues, entries).Rows

	tot := Aggregate(rows)
	assert.Equal(t, 3, tot.Days)
	assert.Equal(t, 1, tot.Balanced)
	assert.Equal(t, 1, tot.Unbalanced)
	assert.Equal(t, 1, tot.Pending)
	assert.True(t, tot.TTC.Equal(d("1300")))
	assert.True(t, tot.HT.Equal(d("836.67")))
	assert.True(t, tot.Saisie.Equal(d("670")))
	assert.True(t, tot.Virement.Equal(d("40")))
	assert.True(t, tot.Depenses.Equal(d("20")))
	assert.True(t, tot.Difference.Equal(d("-630")))
	assert.True(t, tot.Difference.Equal(tot.Saisie.Sub(tot.TTC)))
	assert.True(t, tot.HTByRate["20"].Equal(d("300")))
	assert.True(t, tot.TVAByRate["10"].Equal(d("20")))
	assert.Equal(t, []string{"20", "10"}, tot.Rates())
}

func TestAggregateEmpty(t *testing.T) {
	tot := Aggregate(nil)
	assert.Zero(t, tot.Days)
	assert.True(t, tot.Difference.IsZero())
	assert.Empty(t, tot.Rates())
}
