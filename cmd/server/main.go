/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the NudaPro valuation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file + NUDA_* env)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Seed the coefficient table on first run (YAML seed file or defaults)
  5. Ensure the protected admin account exists
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS (override config):
  -config     Path to config.yaml (default: search . and ./config)
  -port       HTTP server port
  -db         SQLite database path. Use ":memory:" for in-memory database
  -log-level  debug, info, warn, error

BACKGROUND JOBS:
  Expired sessions are purged every sessionPurgeInterval.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/nuda.db"
  ./server -db=":memory:" -log-level=debug
  NUDA_AUTH_ADMIN_PASSWORD=s3cret-pass ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/api"
	"github.com/warp/nuda-engine/config"
	"github.com/warp/nuda-engine/report"
	"github.com/warp/nuda-engine/store/sqlite"
	"github.com/warp/nuda-engine/valuation"
	"go.uber.org/zap"
)

const sessionPurgeInterval = 15 * time.Minute

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := config.NewLogger(cfg.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	seed, err := loadSeed(cfg.Table.SeedFile)
	if err != nil {
		return err
	}

	// Accounts
	accounts := account.NewService(store, logger.Named("account"), account.Options{SessionTTL: cfg.Auth.SessionTTL})
	created, err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	if created && cfg.UsesDefaultAdminPassword() {
		logger.Warn("admin account created with the default password; set auth.admin_password or NUDA_AUTH_ADMIN_PASSWORD and change it")
	}

	// Report rendering
	formatter, err := report.NewFormatter(cfg.Report.Locale)
	if err != nil {
		return err
	}
	var contact []string
	if len(cfg.Report.Contact) > 0 {
		contact = cfg.Report.Contact
	}
	renderer := report.NewRenderer(formatter, contact)

	// Initialize handler
	handler := api.NewHandler(store, accounts, renderer, api.HandlerOptions{
		Seed:               seed,
		Logger:             logger.Named("api"),
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		LoginBurst:         cfg.Auth.LoginBurst,
	})
	seeded, err := handler.LoadTable(ctx)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("coefficient table seeded", zap.Int("rows", seed.Len()))
	}

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Named("http"),
		TrustProxy:     cfg.Server.TrustProxy,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	go purgeSessions(jobCtx, store, logger)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadSeed returns the table written on first run and restored by reset.
func loadSeed(path string) (*valuation.Table, error) {
	if path == "" {
		return valuation.DefaultTable(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	table, err := valuation.ReadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return table, nil
}

func purgeSessions(ctx context.Context, store *sqlite.Store, logger *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeExpiredSessions(ctx, now)
			if err != nil {
				logger.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
