/*
main.go - Application entry point

PURPOSE:
  The payrun command: serves the HTTP API and runs previews, syncs and
  imports from the shell. Handles configuration, dependency injection,
  and graceful shutdown.

COMMANDS:
  serve     HTTP API (+ periodic sync when PAYRUN_SYNC_INTERVAL > 0)
  preview   Compute a pay run and print it (JSON, or CSV with --csv)
  sync      Reconcile a pay run with the payroll system
  import    Store raw time-entry payloads from files

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Initialize SQLite store
  3. Build the payroll API client and the per-employee locker
  4. Wire the pay-run service and API handler
  5. Run the command

GRACEFUL SHUTDOWN (serve):
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and Redis connections

EXAMPLES:
  # Serve with a file database
  payrun serve --db ./data/payrun.db

  # Preview last week as CSV
  payrun preview --start 2025-03-10 --end 2025-03-16 --csv > lines.csv

  # Sync the current calendar period without writing
  payrun sync --dry-run

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - payrun/service.go: Preview and sync
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/warp/payroll-sync/api"
	"github.com/warp/payroll-sync/config"
	"github.com/warp/payroll-sync/payrollapi"
	"github.com/warp/payroll-sync/payrun"
	"github.com/warp/payroll-sync/reconcile"
	"github.com/warp/payroll-sync/store/sqlite"
)

var (
	envFile   string
	dbPath    string
	redisAddr string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "payrun",
	Short: "payrun - time tracking to payroll timesheet sync",
	Long: `payrun turns raw time-tracking entries into tiered pay lines, rolls them
up into weekly timesheets and leave applications, and writes them to the
payroll system exactly once.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Optional .env file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides PAYRUN_DB)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis host:port for locks (overrides PAYRUN_REDIS_ADDR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		loaded.DBPath = dbPath
	}
	if cmd.Flags().Changed("redis") {
		loaded.RedisAddr = redisAddr
	}
	if cmd.Flags().Changed("port") {
		loaded.Port = servePort
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// app is the wired dependency graph shared by every command.
type app struct {
	store   *sqlite.Store
	service *payrun.Service
	handler *api.Handler
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{store: store, closers: []func() error{store.Close}}

	client := payrollapi.NewClient(ctx, payrollapi.Config{
		BaseURL:     cfg.PayrollBaseURL,
		AccessToken: cfg.PayrollAccessToken,
		TenantID:    cfg.PayrollTenantID,
		Timeout:     cfg.HTTPTimeout,
	})

	a.service = &payrun.Service{
		Time:           store,
		Catalog:        client,
		Writer:         client,
		Runs:           store,
		Concurrency:    cfg.Concurrency,
		CallTimeout:    cfg.HTTPTimeout,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Metrics:        reconcile.NewMetrics(prometheus.DefaultRegisterer),
	}

	if cfg.RedisAddr != "" {
		redis := reconcile.NewGoRedisEvaler(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redis.Ping(pingCtx); err != nil {
			a.Close()
			_ = redis.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, redis.Close)
		// a lease outlives the slowest check-then-create pair
		a.service.Locker = reconcile.NewRedisLocker(redis, 4*cfg.HTTPTimeout)
		log.Printf("Using Redis locks at %s", cfg.RedisAddr)
	}

	a.handler = api.NewHandler(store, a.service)
	a.handler.Gatherer = prometheus.DefaultGatherer

	if cfg.RulesetFile != "" {
		book, err := a.handler.Factory.LoadBookFile(cfg.RulesetFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.service.Rulesets = payrun.StaticRulesets(book)
		log.Printf("Using rulesets from %s", cfg.RulesetFile)
	} else {
		a.service.Rulesets = a.handler.RulesetSource()
	}

	return a, nil
}
