/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the employment engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize the structured logger
  3. Initialize SQLite store
  4. Create API handler and engine with metrics
  5. Start the accrual refresh scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides server.listen_addr
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

ENVIRONMENT:
  ENGINE_LISTEN_ADDR, ENGINE_DB_PATH, ENGINE_END_OF_CONTRACT_OFFSET,
  ENGINE_METRICS_NAMESPACE, ENGINE_ACCRUAL_REFRESH_INTERVAL,
  ENGINE_LOG_LEVEL. A .env file is read when present.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the accrual scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/warp.db"
  ./server -config=config.yaml -port=3000

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/employment-engine/api"
	"github.com/warp/employment-engine/config"
	"github.com/warp/employment-engine/store/sqlite"
	"github.com/warp/employment-engine/timeoff"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.ListenAddr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize handler and engine
	opts := []timeoff.Option{
		timeoff.WithLogger(logger),
		timeoff.WithMetrics(timeoff.NewPrometheusMetrics(prometheus.DefaultRegisterer, cfg.Engine.MetricsNamespace)),
	}
	if cfg.Engine.EndOfContractOffset > 0 {
		opts = append(opts, timeoff.WithEndOfContractOffset(cfg.Engine.EndOfContractOffset))
	}
	handler := api.NewHandler(store, opts...)
	handler.Logger = logger

	scheduler := api.NewAccrualScheduler(handler)
	if cfg.Engine.AccrualRefreshInterval > 0 {
		scheduler.CheckInterval = cfg.Engine.AccrualRefreshInterval
	} else {
		scheduler.Enabled = false
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      api.NewRouter(handler, promhttp.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.ListenAddr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
