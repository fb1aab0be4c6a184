// Package memory is an in-process backend seeded from JSON files. It serves
// local development and tests without the remote persistence API.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"caisse/internal/core"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
)

// Seed file names looked up by NewFromFiles.
const (
	RevenueFile     = "revenue.json"
	CashEntriesFile = "cash_entries.json"
)

type Store struct {
	mu       sync.Mutex
	revenues []core.RevenueRecord
	entries  []core.CashEntry
	newID    func() string
}

func New(revenues []core.RevenueRecord, entries []core.CashEntry) *Store {
	s := &Store{
		revenues: append([]core.RevenueRecord(nil), revenues...),
		newID:    func() string { return uuid.NewString() },
	}
	for _, e := range entries {
		if !e.HasID() {
			e.ID = s.newID()
		}
		s.entries = append(s.entries, e.Clone())
	}
	return s
}

// NewFromFiles loads revenue.json and cash_entries.json from base. Missing
// files yield an empty store; malformed ones are an error.
func NewFromFiles(base string) (*Store, error) {
	var revenues []core.RevenueRecord
	if err := readJSON(filepath.Join(base, RevenueFile), &revenues); err != nil {
		return nil, err
	}
	var entries []core.CashEntry
	if err := readJSON(filepath.Join(base, CashEntriesFile), &entries); err != nil {
		return nil, err
	}
	return New(revenues, entries), nil
}

func (s *Store) ListRevenue(_ context.Context, p reconcile.Period) ([]core.RevenueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reconcile.FilterRevenue(s.revenues, p), nil
}

func (s *Store) ListCashEntries(_ context.Context) ([]core.CashEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CashEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// CreateCashEntry stores the entry under a fresh identifier.
func (s *Store) CreateCashEntry(_ context.Context, e core.CashEntry) (core.CashEntry, error) {
	e = normalize(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.newID()
	s.entries = append(s.entries, e.Clone())
	return e, nil
}

func (s *Store) UpdateCashEntry(_ context.Context, e core.CashEntry) (core.CashEntry, error) {
	if !e.HasID() {
		return core.CashEntry{}, core.ErrMissingIdentifier
	}
	e = normalize(e)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == e.ID {
			s.entries[i] = e.Clone()
			return e, nil
		}
	}
	return core.CashEntry{}, notFound(sources.OpUpdate, e.ID)
}

func (s *Store) DeleteCashEntry(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrMissingIdentifier
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return notFound(sources.OpDelete, id)
}

// AddRevenue appends revenue records. Used to seed tests.
func (s *Store) AddRevenue(records ...core.RevenueRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revenues = append(s.revenues, records...)
}

func normalize(e core.CashEntry) core.CashEntry {
	if iso := core.ISODate(e.Date); iso != "" {
		e.Date = iso
	}
	return e.Clone()
}

func notFound(op, id string) error {
	return &sources.PersistenceError{Op: op, StatusCode: 404, Message: fmt.Sprintf("cash entry %q not found", id)}
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
