package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caisse/internal/amqp"
	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/report"
	"caisse/internal/services"
	"caisse/internal/sources"
)

const (
	loadAttempts   = 3
	loadRetryDelay = 2 * time.Second
)

// ReportWriter stores a rendered reconciliation for a period.
type ReportWriter interface {
	WriteReport(ctx context.Context, p reconcile.Period, t report.Table) (string, error)
}

// ViewLoader computes the reconciliation of a period.
type ViewLoader interface {
	Load(ctx context.Context, p reconcile.Period) (services.View, error)
}

// ExportWorker re-exports the month touched by each cash entry change.
type ExportWorker struct {
	loader ViewLoader
	writer ReportWriter
	logger *log.Logger
	now    func() time.Time
	// retryDelay is the wait before the first retry; it doubles after.
	retryDelay time.Duration
}

func NewExportWorker(loader ViewLoader, writer ReportWriter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		loader: loader,
		writer: writer,
		logger:     logger.WithComponent(log.ComponentWorker),
		now:        time.Now,
		retryDelay: loadRetryDelay,
	}
}

// HandleChangeMessage processes a single change message from AMQP. A change
// without a usable date (a delete sent without it) re-exports the current month.
func (w *ExportWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	p := w.periodFor(msg.Date)
	w.logger.InfoContext(ctx, "Processing change message",
		log.FieldOperation, log.OpConsume,
		log.FieldEntryID, msg.ID,
		"op", string(msg.Op),
		log.FieldPeriod, p.Key())

	if err := w.ExportPeriod(ctx, p); err != nil {
		return fmt.Errorf("export after %s of %s: %w", msg.Op, msg.ID, err)
	}
	return nil
}

func (w *ExportWorker) periodFor(date string) reconcile.Period {
	d, ok := core.ParseDay(date)
	if !ok {
		now := w.now()
		return reconcile.Month(now.Year(), int(now.Month()))
	}
	return reconcile.Month(d.Year(), int(d.Month()))
}

// ExportPeriod loads the reconciliation of p and writes it.
func (w *ExportWorker) ExportPeriod(ctx context.Context, p reconcile.Period) error {
	view, err := w.load(ctx, p)
	if err != nil {
		return fmt.Errorf("load %s: %w", p.Key(), err)
	}

	rng, err := w.writer.WriteReport(ctx, p, report.NewTable(view.Rows, view.Totals))
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to write report",
			log.NewFields().WithOperation(log.OpExport).WithPeriod(p.Key()).WithError(err).ToSlice()...)
		return fmt.Errorf("write report %s: %w", p.Key(), err)
	}

	w.logger.InfoContext(ctx, "Period exported",
		log.FieldOperation, log.OpExport,
		log.FieldPeriod, p.Key(),
		log.FieldRows, len(view.Rows),
		log.FieldDifference, core.FormatEuros(view.Totals.Difference),
		log.FieldSheetsRange, rng)
	return nil
}

// load retries a load that went stale (a change arrived meanwhile) or hit a
// transient persistence failure, waiting between transient retries.
func (w *ExportWorker) load(ctx context.Context, p reconcile.Period) (services.View, error) {
	delay := w.retryDelay
	var (
		view services.View
		err  error
	)
	for attempt := 1; ; attempt++ {
		view, err = w.loader.Load(ctx, p)
		if err == nil || attempt == loadAttempts {
			return view, err
		}
		switch {
		case errors.Is(err, services.ErrStaleView):
			continue
		case sources.IsTransient(err):
			w.logger.WarnContext(ctx, "Transient load failure, retrying",
				log.NewFields().WithOperation(log.OpLoad).WithPeriod(p.Key()).WithError(err).ToSlice()...)
			select {
			case <-ctx.Done():
				return view, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		default:
			return view, err
		}
	}
}

// StartupExport re-exports the current and previous months so changes
// missed while the worker was down are reflected.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	now := w.now()
	current := reconcile.Month(now.Year(), int(now.Month()))
	prevDay := current.From.AddDays(-1)
	previous := reconcile.Month(prevDay.Year(), int(prevDay.Month()))

	var errs []error
	for _, p := range []reconcile.Period{previous, current} {
		if err := w.ExportPeriod(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("startup export: %w", errors.Join(errs...))
	}
	w.logger.InfoContext(ctx, "Startup export completed", log.FieldOperation, log.OpStartup)
	return nil
}
