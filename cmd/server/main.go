/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the scholarship ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (config/.env.<ENV>, then LEDGER_* environment)
  2. Parse command-line flags (override config)
  3. Open the SQL store (SQLite or PostgreSQL)
  4. Build the ledger engine, API handler and webhook receiver
  5. Start the audit scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: LEDGER_PORT or 8080)
  -db      Database DSN (default: LEDGER_DB_DSN or ledger.db)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/ledger.db"
  LEDGER_DB_DRIVER=postgres LEDGER_DB_DSN="postgres://..." ./server
  LEDGER_WEBHOOK_SECRET=whsec_... ./server -port=3000

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/scholarship-ledger/api"
	"github.com/warp/scholarship-ledger/config"
	"github.com/warp/scholarship-ledger/ledger"
	"github.com/warp/scholarship-ledger/logger"
	"github.com/warp/scholarship-ledger/store/sqlstore"
	"github.com/warp/scholarship-ledger/webhook"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DB.DSN, "database DSN")
	flag.Parse()
	cfg.Port, cfg.DB.DSN = *port, *dsn

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	// Initialize store
	store, err := sqlstore.New(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to initialize database")
	}
	defer store.Close()

	engine := ledger.NewEngine(store, log)
	engine.DefaultCurrency = cfg.Currency

	opts := api.RouterOptions{Logger: log, CORSOrigins: cfg.CORSOrigins}
	if cfg.Webhook.Secret != "" {
		opts.Webhook = webhook.NewHandler(engine, webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance), log)
	} else {
		log.Warn().Msg("LEDGER_WEBHOOK_SECRET not set, gateway webhooks disabled")
	}
	scheduler := api.NewAuditScheduler(engine, log, cfg.AuditInterval)
	scheduler.Start()

	handler := api.NewHandler(engine)
	handler.FiscalYearStart = cfg.FiscalYearStart
	handler.Auditor = scheduler
	router := api.NewRouter(handler, opts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
