// Command caisse serves the cash reconciliation API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"caisse/internal/amqp"
	"caisse/internal/backend"
	"caisse/internal/cli"
	"caisse/internal/events"
	apphttp "caisse/internal/http"
	"caisse/internal/log"
	"caisse/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap("caisse", os.Stdout)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err.Error(), log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	bus := events.NewBus()
	recon := services.NewReconciliationService(res.Revenue, res.Store, logger)
	bus.Subscribe(recon.Listener())
	cash := services.NewCashService(res.Store, bus, cfg.StrictCashForm, logger)

	// Change notifications for the export worker are optional.
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, changes will not be published", log.FieldError, err.Error())
			amqpClient = nil
		} else {
			bus.Subscribe(amqpClient.Listener())
		}
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              res.IsReady,
		Logger:             logger,
	}, recon, cash)
	srv.MaxHeaderBytes = 1 << 16

	closeResources := func() {
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		closeResources()
	})

	logger.Info("Starting caisse server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		closeResources()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
