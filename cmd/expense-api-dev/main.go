// Command expense-api-dev serves an in-memory copy of the expense REST API
// for local development of the dashboard.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensedash/internal/apistub"
	"expensedash/internal/cli"
	"expensedash/internal/config"
	applog "expensedash/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	cfg := config.LoadStub()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	stub := apistub.New(apistub.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn), logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	}()

	logger.Info("Starting expense API stub", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Expense API stub stopped")
}
