// Command caisse-worker keeps the Google Sheets reconciliation report in
// sync: it consumes cash entry changes from AMQP and re-exports the month
// each change belongs to.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"caisse/internal/amqp"
	"caisse/internal/backend"
	"caisse/internal/cli"
	"caisse/internal/config"
	"caisse/internal/log"
	"caisse/internal/services"
	"caisse/internal/sheets/google"
	"caisse/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap("caisse-worker", os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

// run owns every resource so its deferred cleanups run before main exits.
func run(cfg *config.Config, logger *log.Logger) error {
	if !cfg.AMQPEnabled() || !cfg.SheetsEnabled() {
		return errors.New("caisse-worker needs AMQP_URL and GOOGLE_SPREADSHEET_ID")
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return fmt.Errorf("initialize data backend: %w", err)
	}
	defer res.Close()

	sheetsClient, err := google.New(context.Background(), google.ConfigFrom(cfg), logger)
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	recon := services.NewReconciliationService(res.Revenue, res.Store, logger)
	exporter := worker.NewExportWorker(recon, sheetsClient, logger)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	// Catch up on changes missed while the worker was down.
	if err := exporter.StartupExport(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err.Error())
	}

	// Revenue records change outside this system; a periodic export picks them up.
	if cfg.ExportSchedule != "" {
		scheduler := worker.NewScheduler(logger, 5*time.Minute)
		job := worker.JobFunc{JobName: "monthly-report", Fn: exporter.StartupExport}
		if err := scheduler.AddJob(ctx, cfg.ExportSchedule, job); err != nil {
			return fmt.Errorf("invalid export schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if err := amqpClient.ConsumeChanges(ctx, exporter.HandleChangeMessage); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("message consumption: %w", err)
	}

	cli.WaitForShutdown(ctx, done)
	return nil
}
