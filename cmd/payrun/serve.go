package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-sync/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port (overrides PAYRUN_PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequirePayroll(); err != nil {
		log.Printf("Warning: %v; previews and syncs will fail until it is set", err)
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Create router
	router := api.NewRouter(a.handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // syncs call the payroll system per employee
		IdleTimeout:  60 * time.Second,
	}

	var scheduler *api.SyncScheduler
	if cfg.SyncInterval > 0 {
		scheduler = api.NewSyncScheduler(a.service, a.store)
		scheduler.CheckInterval = cfg.SyncInterval
		scheduler.Start()
		a.handler.Scheduler = scheduler
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("Shutting down server...")
	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
