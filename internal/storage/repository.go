package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/sources"

	_ "modernc.org/sqlite"
)

const (
	kindPrestaB2B = "presta_b2b"
	kindDepense   = "depense"
)

// SQLiteRepository stores revenue records and cash entries locally. Amounts
// are kept as decimal strings so sums stay exact.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("SQLite store ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListRevenue implements sources.RevenueSource.
func (r *SQLiteRepository) ListRevenue(ctx context.Context, p reconcile.Period) ([]core.RevenueRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, ttc, ht, tva, ht_by_rate, tva_by_rate
		FROM revenue_records
		WHERE day BETWEEN ? AND ?
		ORDER BY day`, p.From.ISO(), p.To.ISO())
	if err != nil {
		return nil, fmt.Errorf("list revenue: %w", err)
	}
	defer rows.Close()

	var out []core.RevenueRecord
	for rows.Next() {
		var (
			rec             core.RevenueRecord
			ttc, ht, tva    string
			htRate, tvaRate sql.NullString
		)
		if err := rows.Scan(&rec.Date, &ttc, &ht, &tva, &htRate, &tvaRate); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		rec.TTC, rec.HT, rec.TVA = core.Coerce(ttc), core.Coerce(ht), core.Coerce(tva)
		rec.HTByRate = decodeBreakdown(htRate)
		rec.TVAByRate = decodeBreakdown(tvaRate)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertRevenue inserts or replaces revenue records keyed by day. Records
// with an unparseable date are skipped; the number stored is returned.
func (r *SQLiteRepository) UpsertRevenue(ctx context.Context, records []core.RevenueRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stored := 0
	for _, rec := range records {
		day := core.ISODate(rec.Date)
		if day == "" {
			continue
		}
		htRate, err := encodeBreakdown(rec.HTByRate)
		if err != nil {
			return 0, err
		}
		tvaRate, err := encodeBreakdown(rec.TVAByRate)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO revenue_records (day, ttc, ht, tva, ht_by_rate, tva_by_rate)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(day) DO UPDATE SET
				ttc = excluded.ttc, ht = excluded.ht, tva = excluded.tva,
				ht_by_rate = excluded.ht_by_rate, tva_by_rate = excluded.tva_by_rate`,
			day, rec.TTC.String(), rec.HT.String(), rec.TVA.String(), htRate, tvaRate); err != nil {
			return 0, fmt.Errorf("upsert revenue %s: %w", day, err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit revenue: %w", err)
	}
	return stored, nil
}

// ImportRevenue copies the revenue records of p from src into the store.
// Days already stored are overwritten; the number stored is returned.
func (r *SQLiteRepository) ImportRevenue(ctx context.Context, src sources.RevenueSource, p reconcile.Period) (int, error) {
	records, err := src.ListRevenue(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("read revenue %s: %w", p.Key(), err)
	}
	n, err := r.UpsertRevenue(ctx, records)
	if err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "Revenue imported",
		log.FieldOperation, log.OpImport, log.FieldPeriod, p.Key(), log.FieldRows, n, "skipped", len(records)-n)
	return n, nil
}

// ListCashEntries implements sources.CashEntryLister.
func (r *SQLiteRepository) ListCashEntries(ctx context.Context) ([]core.CashEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, day, virement, cb_classique, cb_sans_contact, especes
		FROM cash_entries
		ORDER BY day, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list cash entries: %w", err)
	}

	var entries []core.CashEntry
	index := map[string]int{}
	for rows.Next() {
		var (
			e                   core.CashEntry
			vir, cbc, cbsc, esp string
		)
		if err := rows.Scan(&e.ID, &e.Date, &vir, &cbc, &cbsc, &esp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cash entry: %w", err)
		}
		e.Virement, e.CBClassique = core.Coerce(vir), core.Coerce(cbc)
		e.CBSansContact, e.Especes = core.Coerce(cbsc), core.Coerce(esp)
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cash entries: %w", err)
	}

	items, err := r.db.QueryContext(ctx, `
		SELECT entry_id, kind, label, value
		FROM cash_entry_items
		ORDER BY entry_id, kind, position`)
	if err != nil {
		return nil, fmt.Errorf("list cash entry items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var id, kind, label, value string
		if err := items.Scan(&id, &kind, &label, &value); err != nil {
			return nil, fmt.Errorf("scan cash entry item: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		item := core.LineItem{Label: label, Value: core.Coerce(value)}
		if kind == kindPrestaB2B {
			entries[i].PrestaB2B = append(entries[i].PrestaB2B, item)
		} else {
			entries[i].Depenses = append(entries[i].Depenses, item)
		}
	}
	return entries, items.Err()
}

// CreateCashEntry implements sources.CashEntryWriter.
func (r *SQLiteRepository) CreateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error) {
	e, err := normalize(sources.OpCreate, e)
	if err != nil {
		return core.CashEntry{}, err
	}
	e.ID = uuid.NewString()

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cash_entries (id, day, virement, cb_classique, cb_sans_contact, especes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.Date, e.Virement.String(), e.CBClassique.String(), e.CBSansContact.String(), e.Especes.String()); err != nil {
			return fmt.Errorf("insert cash entry: %w", err)
		}
		return insertItems(ctx, tx, e)
	})
	if err != nil {
		return core.CashEntry{}, err
	}

	r.logger.InfoContext(ctx, "Cash entry saved to SQLite",
		log.NewFields().WithOperation(log.OpCreate).WithCashEntry(e.ID, e.Date).ToSlice()...)
	return e, nil
}

// UpdateCashEntry implements sources.CashEntryWriter.
func (r *SQLiteRepository) UpdateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error) {
	if !e.HasID() {
		return core.CashEntry{}, core.ErrMissingIdentifier
	}
	e, err := normalize(sources.OpUpdate, e)
	if err != nil {
		return core.CashEntry{}, err
	}

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cash_entries
			SET day = ?, virement = ?, cb_classique = ?, cb_sans_contact = ?, especes = ?,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			e.Date, e.Virement.String(), e.CBClassique.String(), e.CBSansContact.String(), e.Especes.String(), e.ID)
		if err != nil {
			return fmt.Errorf("update cash entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(sources.OpUpdate, e.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cash_entry_items WHERE entry_id = ?`, e.ID); err != nil {
			return fmt.Errorf("clear cash entry items: %w", err)
		}
		return insertItems(ctx, tx, e)
	})
	if err != nil {
		return core.CashEntry{}, err
	}

	r.logger.InfoContext(ctx, "Cash entry updated in SQLite",
		log.NewFields().WithOperation(log.OpUpdate).WithCashEntry(e.ID, e.Date).ToSlice()...)
	return e, nil
}

// DeleteCashEntry implements sources.CashEntryWriter.
func (r *SQLiteRepository) DeleteCashEntry(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrMissingIdentifier
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cash_entry_items WHERE entry_id = ?`, id); err != nil {
			return fmt.Errorf("delete cash entry items: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM cash_entries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete cash entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(sources.OpDelete, id)
		}
		return nil
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, e core.CashEntry) error {
	groups := []struct {
		kind  string
		items []core.LineItem
	}{
		{kindPrestaB2B, e.PrestaB2B},
		{kindDepense, e.Depenses},
	}
	for _, g := range groups {
		for pos, it := range g.items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cash_entry_items (entry_id, kind, position, label, value)
				VALUES (?, ?, ?, ?, ?)`,
				e.ID, g.kind, pos, it.Label, it.Value.String()); err != nil {
				return fmt.Errorf("insert %s item: %w", g.kind, err)
			}
		}
	}
	return nil
}

// normalize stores dates as YYYY-MM-DD; an unparseable date is refused.
func normalize(op string, e core.CashEntry) (core.CashEntry, error) {
	day := core.ISODate(e.Date)
	if day == "" {
		return core.CashEntry{}, &sources.PersistenceError{Op: op, StatusCode: 400, Message: fmt.Sprintf("invalid date %q", e.Date)}
	}
	e = e.Clone()
	e.Date = day
	return e, nil
}

func notFound(op, id string) error {
	return &sources.PersistenceError{Op: op, StatusCode: 404, Message: fmt.Sprintf("cash entry %q not found", id)}
}

func encodeBreakdown(b core.TaxBreakdown) (sql.NullString, error) {
	if b.Kind() == core.BreakdownNone {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode tax breakdown: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeBreakdown(s sql.NullString) core.TaxBreakdown {
	var b core.TaxBreakdown
	if !s.Valid {
		return b
	}
	if err := json.Unmarshal([]byte(s.String), &b); err != nil {
		return core.TaxBreakdown{}
	}
	return b
}
