package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"caisse/internal/core"
	"caisse/internal/events"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
)

var (
	// ErrStaleView is returned by Load when the cash entries changed while
	// it was fetching. Its result was not installed.
	ErrStaleView = errors.New("stale reconciliation view")
	// ErrNoView is returned by Refresh before any period was loaded.
	ErrNoView = errors.New("no reconciliation view loaded")
)

// View is one computed reconciliation of a period.
type View struct {
	Period             reconcile.Period
	Rows               []reconcile.Row
	Totals             reconcile.Totals
	DuplicateEntryKeys []string
	// DuplicateRevenueKeys lists days carried by more than one revenue record.
	DuplicateRevenueKeys []string
	Generation         uint64
	LoadedAt           time.Time
}

// ReconciliationService fetches revenue records and cash entries, merges
// them and keeps the latest view. Every load re-fetches cash entries.
type ReconciliationService struct {
	revenue sources.RevenueSource
	entries sources.CashEntryLister
	logger  *log.Logger
	now     func() time.Time

	// generation orders loads by start; epoch counts data changes.
	generation atomic.Uint64
	epoch      atomic.Uint64

	mu        sync.RWMutex
	current   *View
	period    *reconcile.Period
	installed uint64
}

func NewReconciliationService(revenue sources.RevenueSource, entries sources.CashEntryLister, logger *log.Logger) *ReconciliationService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReconciliationService{
		revenue: revenue,
		entries: entries,
		logger:  logger.WithComponent(log.ComponentReconcile),
		now:     time.Now,
	}
}

// Load fetches both sources concurrently and returns the merged view for p.
// Concurrent loads do not fail each other: each caller gets its own view,
// and the current view is replaced only by a load started after the one
// installed. A load that straddled Invalidate returns its result with
// ErrStaleView and is not installed. On fetch failure the current view is
// left untouched.
func (s *ReconciliationService) Load(ctx context.Context, p reconcile.Period) (View, error) {
	if err := p.Validate(); err != nil {
		return View{}, err
	}
	epoch := s.epoch.Load()
	gen := s.generation.Add(1)

	revenues, entries, err := s.fetch(ctx, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load reconciliation",
			log.NewFields().WithOperation(log.OpLoad).WithPeriod(p.Key()).WithError(err).ToSlice()...)
		return View{}, fmt.Errorf("load %s: %w", p.Key(), err)
	}

	res := reconcile.Merge(revenues, entries)
	if len(res.DuplicateEntryKeys) > 0 {
		s.logger.WarnContext(ctx, "Several cash entries share a day, the last one is used",
			log.FieldPeriod, p.Key(), "days", res.DuplicateEntryKeys)
	}
	if len(res.DuplicateRevenueKeys) > 0 {
		s.logger.WarnContext(ctx, "Several revenue records share a day, each gets a row",
			log.FieldPeriod, p.Key(), "days", res.DuplicateRevenueKeys)
	}
	view := View{
		Period:               p,
		Rows:                 res.Rows,
		Totals:               reconcile.Aggregate(res.Rows),
		DuplicateEntryKeys:   res.DuplicateEntryKeys,
		DuplicateRevenueKeys: res.DuplicateRevenueKeys,
		Generation:           gen,
		LoadedAt:             s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.Load() != epoch {
		s.logger.DebugContext(ctx, "Discarding reconciliation fetched across a change",
			log.FieldPeriod, p.Key(), log.FieldGeneration, gen)
		return view, ErrStaleView
	}
	if gen < s.installed {
		s.logger.DebugContext(ctx, "Newer reconciliation already installed",
			log.FieldPeriod, p.Key(), log.FieldGeneration, gen)
		return view, nil
	}
	s.current = &view
	s.period = &p
	s.installed = gen

	s.logger.InfoContext(ctx, "Reconciliation loaded",
		log.FieldOperation, log.OpLoad,
		log.FieldPeriod, p.Key(),
		log.FieldRows, len(view.Rows),
		log.FieldDifference, view.Totals.Difference.StringFixed(2),
		log.FieldGeneration, gen)
	return view, nil
}

func (s *ReconciliationService) fetch(ctx context.Context, p reconcile.Period) ([]core.RevenueRecord, []core.CashEntry, error) {
	var (
		revenues []core.RevenueRecord
		entries  []core.CashEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenues, err = s.revenue.ListRevenue(gctx, p)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.entries.ListCashEntries(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return revenues, entries, nil
}

// Current returns the installed view, if any.
func (s *ReconciliationService) Current() (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return View{}, false
	}
	return *s.current, true
}

// Refresh reloads the last loaded period.
func (s *ReconciliationService) Refresh(ctx context.Context) (View, error) {
	s.mu.RLock()
	p := s.period
	s.mu.RUnlock()
	if p == nil {
		return View{}, ErrNoView
	}
	return s.Load(ctx, *p)
}

// Invalidate drops the current view and makes in-flight loads stale.
func (s *ReconciliationService) Invalidate() {
	s.mu.Lock()
	s.epoch.Add(1)
	s.current = nil
	s.mu.Unlock()
}

// Listener invalidates the view on every cash entry change.
func (s *ReconciliationService) Listener() events.Listener {
	return func(ctx context.Context, c events.Change) {
		s.logger.DebugContext(ctx, "Cash entries changed, view invalidated",
			log.FieldEntryID, c.ID, "op", string(c.Op))
		s.Invalidate()
	}
}

// AuditDayOffset lists the cash entries that look recorded one day before
// their revenue day within p.
func (s *ReconciliationService) AuditDayOffset(ctx context.Context, p reconcile.Period) ([]reconcile.OffsetCandidate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	revenues, entries, err := s.fetch(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", p.Key(), err)
	}
	window := reconcile.Range(p.From.AddDays(-1), p.To)
	return reconcile.AuditDayOffset(revenues, reconcile.FilterEntries(entries, window)), nil
}
