package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
	"caisse/internal/sources/memory"
)

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var pe *sources.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 404, pe.StatusCode)
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "caisse.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRevenueRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n, err := repo.UpsertRevenue(ctx, []core.RevenueRecord{
		{Date: "2024-01-15T00:00:00.000Z", TTC: decimal.RequireFromString("500.10"),
			HTByRate: core.RateBreakdown(map[string]decimal.Decimal{"20": decimal.NewFromInt(300)})},
		{Date: "16/01/2024", TTC: decimal.NewFromInt(10), TVAByRate: core.SimpleBreakdown(decimal.NewFromInt(2))},
		{Date: "garbage", TTC: decimal.NewFromInt(99)},
		{Date: "2024-02-01", TTC: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// second upsert replaces
	_, err = repo.UpsertRevenue(ctx, []core.RevenueRecord{{Date: "2024-01-16", TTC: decimal.NewFromInt(11)}})
	require.NoError(t, err)

	records, err := repo.ListRevenue(ctx, reconcile.Month(2024, 1))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-15", records[0].Date)
	assert.True(t, records[0].TTC.Equal(decimal.RequireFromString("500.1")))
	assert.Equal(t, core.BreakdownByRate, records[0].HTByRate.Kind())
	assert.True(t, records[0].HTByRate.Amount("20").Equal(decimal.NewFromInt(300)))
	assert.True(t, records[1].TTC.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, core.BreakdownNone, records[1].TVAByRate.Kind())
}

func TestImportRevenue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	src := memory.New([]core.RevenueRecord{
		{Date: "2024-01-15", TTC: decimal.NewFromInt(500)},
		{Date: "2024-01-16", TTC: decimal.NewFromInt(300)},
		{Date: "2024-02-01", TTC: decimal.NewFromInt(42)},
	}, nil)

	n, err := repo.ImportRevenue(ctx, src, reconcile.Month(2024, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.ListRevenue(ctx, reconcile.Year(2024))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].TTC.Equal(decimal.NewFromInt(300)))

	src.AddRevenue(core.RevenueRecord{Date: "2024-01-16", TTC: decimal.NewFromInt(310)})
	_, err = repo.ImportRevenue(ctx, src, reconcile.Range(core.NewDate(2024, 1, 16), core.NewDate(2024, 1, 16)))
	require.NoError(t, err)
	got, err = repo.ListRevenue(ctx, reconcile.Month(2024, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].TTC.Equal(decimal.NewFromInt(310)), "a re-import overwrites the day")
}

func TestImportRevenueSourceFailure(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.ImportRevenue(context.Background(), failingRevenue{}, reconcile.Month(2024, 1))
	assert.ErrorIs(t, err, sources.ErrNetwork)
}

type failingRevenue struct{}

func (failingRevenue) ListRevenue(context.Context, reconcile.Period) ([]core.RevenueRecord, error) {
	return nil, sources.ErrNetwork
}

func TestCashEntryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateCashEntry(ctx, core.CashEntry{
		Date:      "2024/01/15",
		PrestaB2B: []core.LineItem{{Label: "Société X", Value: decimal.NewFromInt(1000)}},
		Depenses: []core.LineItem{
			{Label: "Lait", Value: decimal.RequireFromString("4.5")},
			{Label: "Pain", Value: decimal.RequireFromString("2.1")},
		},
		CBClassique: decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "2024-01-15", created.Date)

	entries, err := repo.ListCashEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got := entries[0]
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Depenses, 2)
	assert.Equal(t, "Lait", got.Depenses[0].Label)
	assert.True(t, core.SumItems(got.Depenses).Equal(decimal.RequireFromString("6.6")))
	require.Len(t, got.PrestaB2B, 1)
	assert.True(t, got.CBClassique.Equal(decimal.NewFromInt(200)))

	got.Depenses = got.Depenses[:1]
	got.Especes = decimal.NewFromInt(7)
	_, err = repo.UpdateCashEntry(ctx, got)
	require.NoError(t, err)

	entries, err = repo.ListCashEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries[0].Depenses, 1)
	assert.True(t, entries[0].Especes.Equal(decimal.NewFromInt(7)))

	require.NoError(t, repo.DeleteCashEntry(ctx, got.ID))
	entries, err = repo.ListCashEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCashEntryErrors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.DeleteCashEntry(ctx, ""), core.ErrMissingIdentifier)
	assertNotFound(t, repo.DeleteCashEntry(ctx, "nope"))

	_, err := repo.UpdateCashEntry(ctx, core.CashEntry{ID: "nope", Date: "2024-01-01"})
	assertNotFound(t, err)

	_, err = repo.CreateCashEntry(ctx, core.CashEntry{Date: "not a date"})
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caisse.db")
	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	version, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
