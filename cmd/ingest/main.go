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

	"github.com/lysyi3m/rss-priority/app/cfg"
	"github.com/lysyi3m/rss-priority/app/database"
	"github.com/lysyi3m/rss-priority/app/extract"
	"github.com/lysyi3m/rss-priority/app/feed"
	"github.com/lysyi3m/rss-priority/app/ingest"
	"github.com/lysyi3m/rss-priority/app/lock"
	"github.com/lysyi3m/rss-priority/app/metrics"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
	"github.com/lysyi3m/rss-priority/app/tasks"
)

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

	if err := run(appCfg); err != nil {
		slog.Error("Ingestion failed", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting RSS Priority ingester", "version", appCfg.Version, "once", appCfg.Once)

	if appCfg.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required for characteristic extraction")
	}

	rules := scoring.NewLoader(appCfg.RulesPath, appCfg.ScoringPath)
	if _, err := rules.Load(); err != nil {
		return err
	}

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	seenRepo := database.NewSeenRepository(db)
	if reset, err := seenRepo.ResetPending(); err != nil {
		return err
	} else if reset > 0 {
		slog.Info("Released URLs left pending by a previous run", "count", reset)
	}

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load feed configurations: %w", err)
	}
	slog.Info("Feed configurations loaded", "count", configCache.GetConfigCount(), "dir", appCfg.FeedsDir)

	m := metrics.New()
	priorityStore := store.New(appCfg.StorePath)
	marker := lock.NewMarker(lock.MarkerPath(appCfg.StorePath), lock.WithWarnAfter(appCfg.LockWarnAfter))

	extractor := extract.NewLLMExtractor(extract.Settings{
		APIKey:          appCfg.AnthropicAPIKey,
		Model:           appCfg.ExtractModel,
		MaxTokens:       appCfg.ExtractMaxTokens,
		ContentMaxChars: appCfg.ContentMaxChars,
	}, rules)

	scheduler := tasks.NewScheduler(tasks.Deps{
		ConfigCache:      configCache,
		FeedRepo:         database.NewFeedRepository(db),
		SeenRepo:         seenRepo,
		HTTPClient:       &http.Client{Timeout: 60 * time.Second},
		Parser:           feed.NewParser(),
		Filterer:         feed.NewFilterer(),
		ContentExtractor: feed.NewContentExtractor(),
		Buffer:           ingest.NewBuffer(),
		Ingester:         ingest.NewIngester(priorityStore, marker, extractor, ingest.WithMetrics(m)),
		UserAgent:        appCfg.UserAgent,
		Interval:         appCfg.SchedulerInterval,
		WorkerCount:      appCfg.WorkerCount,
	})

	if appCfg.MetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + appCfg.MetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Serving producer metrics", "port", appCfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	if appCfg.Once {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := scheduler.RunOnce(ctx); err != nil {
			return err
		}
		slog.Info("Single pass complete")
		return nil
	}

	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal", "signal", sig)

	scheduler.Stop()

	slog.Info("RSS Priority ingester shutdown complete")
	return nil
}
