package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensedash/internal/apiclient"
	"expensedash/internal/cache"
	"expensedash/internal/cli"
	"expensedash/internal/events"
	"expensedash/internal/export"
	apphttp "expensedash/internal/http"
	applog "expensedash/internal/log"
	"expensedash/internal/session"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
	amqpAttempts    = 5
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	api, err := apiclient.New(apiclient.Options{BaseURL: cfg.ExpenseAPIURL, Timeout: cfg.APITimeout})
	if err != nil {
		logger.Error("Failed to create expense API client", applog.FieldError, err)
		os.Exit(1)
	}

	storeOpts := session.StoreOptions{
		API:     api,
		MaxSize: cfg.SessionMax,
		TTL:     cfg.SessionTTL,
		Logger:  logger,
	}
	var readiness []apphttp.ReadinessCheck
	if cfg.SessionDBPath != "" {
		db := cli.InitSessionStore(logger, cfg.SessionDBPath)
		defer db.Close()
		storeOpts.Tokens = db
		readiness = append(readiness, apphttp.ReadinessCheck{Name: "session_db", Check: db.Ping})
		logger.Info("Session persistence enabled", "path", cfg.SessionDBPath)
	}
	store := session.NewStore(storeOpts)
	if n, err := store.PurgeStale(ctx); err != nil {
		logger.Warn("Failed to purge stale sessions", applog.FieldError, err)
	} else if n > 0 {
		logger.Info("Purged stale sessions", applog.FieldCount, n)
	}

	var publisher events.Publisher
	if cfg.EventsEnabled() {
		amqp := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err := amqp.Connect(ctx, amqpAttempts); err != nil {
			logger.Error("Failed to connect to AMQP broker", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqp.Close()
		publisher = amqp
		logger.Info("Publishing expense events", "exchange", cfg.AMQPExchange)
	}

	var exporter export.Exporter
	if cfg.ExportEnabled() {
		sheets, err := export.New(ctx, export.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets export", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = sheets
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Config:    cfg,
		Sessions:  session.NewService(store, publisher, logger),
		Exporter:  exporter,
		Readiness: readiness,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	janitor := cache.NewJanitor(sweepInterval, logger)
	janitor.Register(store)
	janitor.Register(srv.ChartCache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error { return srv.Limiter().Run(gctx) })
	g.Go(func() error {
		logger.Info("Starting expense dashboard", "port", cfg.Port, "api", cfg.ExpenseAPIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", applog.FieldError, err)
		store.Close()
		os.Exit(1)
	}
	store.Close()
	logger.Info("Server stopped gracefully")
}
