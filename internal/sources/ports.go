// Package sources defines the ports through which revenue records and cash
// entries are read and written, and the errors every adapter reports.
package sources

import (
	"context"
	"errors"
	"fmt"

	"caisse/internal/core"
	"caisse/internal/reconcile"
)

// ErrNetwork wraps transport failures (connection refused, timeout, reset).
var ErrNetwork = errors.New("network error")

// Operations reported in PersistenceError.Op.
const (
	OpListRevenue = "list_revenue"
	OpList        = "list"
	OpCreate      = "create"
	OpUpdate      = "update"
	OpDelete      = "delete"
)

// PersistenceError is returned when the persistence layer answered but the
// answer is unusable: non-2xx status, success=false or malformed JSON.
type PersistenceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *PersistenceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying the same call later could succeed:
// transport failures and 5xx answers.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.StatusCode >= 500
}

// RevenueSource reads the daily turnover. It is read-only.
type RevenueSource interface {
	ListRevenue(ctx context.Context, p reconcile.Period) ([]core.RevenueRecord, error)
}

// CashEntryLister reads every cash entry.
type CashEntryLister interface {
	ListCashEntries(ctx context.Context) ([]core.CashEntry, error)
}

// CashEntryWriter creates, updates and deletes cash entries. Created and
// updated entries are returned as stored, with their identifier.
type CashEntryWriter interface {
	CreateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error)
	UpdateCashEntry(ctx context.Context, e core.CashEntry) (core.CashEntry, error)
	DeleteCashEntry(ctx context.Context, id string) error
}

// CashEntryStore is the full cash entry port.
type CashEntryStore interface {
	CashEntryLister
	CashEntryWriter
}

// Backend is implemented by every data backend (remote API, memory, SQLite).
type Backend interface {
	RevenueSource
	CashEntryStore
}
