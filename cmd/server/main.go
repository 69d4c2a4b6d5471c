package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-priority/app/api"
	"github.com/lysyi3m/rss-priority/app/cfg"
	"github.com/lysyi3m/rss-priority/app/lock"
	"github.com/lysyi3m/rss-priority/app/metrics"
	"github.com/lysyi3m/rss-priority/app/queue"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	appCfg.SetupLogger()

	slog.Info("Starting RSS Priority server", "version", appCfg.Version)

	m := metrics.New()

	rules := scoring.NewLoader(appCfg.RulesPath, appCfg.ScoringPath)
	if _, err := rules.Load(); err != nil {
		// rules are reloaded on every request, so a fix on disk applies without restart
		slog.Warn("Scoring rules are not valid yet", "error", err)
	}

	priorityStore := store.New(appCfg.StorePath)
	marker := lock.NewMarker(lock.MarkerPath(appCfg.StorePath), lock.WithWarnAfter(appCfg.LockWarnAfter))

	q := queue.New(priorityStore, marker, rules, queue.WithMetrics(m))
	q.Init()

	flusher := queue.NewFlusher(q, appCfg.FlushInterval)
	flusher.Start(context.Background())

	apiHandler := api.NewHandler(q, flusher, rules, m.Handler(), api.Options{
		PublicURL:    appCfg.PublicURL(),
		Version:      appCfg.Version,
		FlushTimeout: appCfg.FlushInterval,
	})
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "store", appCfg.StorePath, "flush_interval", appCfg.FlushInterval)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	flusher.Stop()

	if err := q.Close(shutdownCtx); err != nil {
		slog.Error("Final flush failed, served items may reappear", "error", err)
		os.Exit(1)
	}

	slog.Info("RSS Priority server shutdown complete")
}
