package services

import (
	"context"
	"fmt"
	"strings"

	"caisse/internal/core"
	"caisse/internal/events"
	"caisse/internal/log"
	"caisse/internal/sources"
)

// CashService is the write path for cash entries: validation, create or
// update, delete, then a change notification so views re-fetch.
type CashService struct {
	store  sources.CashEntryWriter
	bus    *events.Bus
	strict bool
	logger *log.Logger
	sl     *log.StructuredLogger
}

// NewCashService creates the service. bus may be nil. When strict is set,
// entries with no payment channel are rejected.
func NewCashService(store sources.CashEntryWriter, bus *events.Bus, strict bool, logger *log.Logger) *CashService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentCashEntry)
	return &CashService{
		store:  store,
		bus:    bus,
		strict: strict,
		logger: logger,
		sl:     log.NewStructuredLogger(logger),
	}
}

// Submit updates the entry when it carries an id and creates it otherwise.
// The date is normalized to YYYY-MM-DD before sending.
func (s *CashService) Submit(ctx context.Context, e core.CashEntry) (core.CashEntry, error) {
	e.ID = strings.TrimSpace(e.ID)
	if iso := core.ISODate(e.Date); iso != "" {
		e.Date = iso
	}
	if err := core.ValidateCashEntry(e, s.strict); err != nil {
		s.logger.WarnContext(ctx, "Cash entry rejected",
			log.NewFields().WithOperation(log.OpValidate).WithError(err).
				WithErrorType(log.ErrorTypeValidation).WithCashEntry(e.ID, e.Date).ToSlice()...)
		return core.CashEntry{}, err
	}

	var (
		stored core.CashEntry
		err    error
		op     = events.OpCreated
		logOp  = log.OpCreate
	)
	if e.HasID() {
		op, logOp = events.OpUpdated, log.OpUpdate
		stored, err = s.store.UpdateCashEntry(ctx, e)
	} else {
		stored, err = s.store.CreateCashEntry(ctx, e)
	}
	if err != nil {
		s.sl.LogError(ctx, "Failed to save cash entry", err, log.ComponentCashEntry, logOp,
			log.NewFields().WithCashEntry(e.ID, e.Date))
		return core.CashEntry{}, fmt.Errorf("%s cash entry: %w", logOp, err)
	}

	s.sl.LogCashEntrySaved(ctx, logOp, stored.ID, stored.Date)
	s.notify(ctx, events.Change{Op: op, ID: stored.ID, Date: stored.Date})
	return stored, nil
}

// Delete removes an entry. An empty id fails with core.ErrMissingIdentifier
// before anything is sent. date, when known, tells listeners which day changed.
func (s *CashService) Delete(ctx context.Context, id, date string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrMissingIdentifier
	}
	if err := s.store.DeleteCashEntry(ctx, id); err != nil {
		s.sl.LogError(ctx, "Failed to delete cash entry", err, log.ComponentCashEntry, log.OpDelete,
			log.NewFields().WithCashEntry(id, date))
		return fmt.Errorf("delete cash entry: %w", err)
	}

	s.logger.InfoContext(ctx, "Cash entry deleted",
		log.NewFields().WithOperation(log.OpDelete).WithCashEntry(id, date).ToSlice()...)
	s.notify(ctx, events.Change{Op: events.OpDeleted, ID: id, Date: core.ISODate(date)})
	return nil
}

func (s *CashService) notify(ctx context.Context, c events.Change) {
	if s.bus != nil {
		s.bus.Notify(ctx, c)
	}
}
