package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-priority/app/metrics"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

type Ingester struct {
	store     Persister
	locker    Locker
	extractor Extractor
	metrics   *metrics.Metrics
}

type Option func(*Ingester)

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) {
		i.metrics = m
	}
}

func NewIngester(persister Persister, locker Locker, extractor Extractor, opts ...Option) *Ingester {
	i := &Ingester{
		store:     persister,
		locker:    locker,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run appends the extracted candidates to the store inside a single critical
// section. A failed extraction skips that candidate only. Cancellation or a
// scoring configuration error stops the run: the items appended so far are
// still saved and the unattempted candidates are returned in Remaining. A
// configuration error is also returned, together with the populated Result.
func (i *Ingester) Run(ctx context.Context, candidates []Candidate) (Result, error) {
	var result Result
	if len(candidates) == 0 {
		return result, nil
	}

	start := time.Now()
	var stopErr error

	err := i.locker.WithLock(ctx, func() error {
		items := i.store.Load()
		before := len(items)

		for idx, c := range candidates {
			if err := ctx.Err(); err != nil {
				result.Remaining = candidates[idx:]
				slog.Warn("Ingestion interrupted, saving appended items", "processed", idx, "total", len(candidates), "error", err)
				break
			}

			characteristics, err := i.extractor.Extract(ctx, c.RawText)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					result.Remaining = candidates[idx:]
					slog.Warn("Ingestion interrupted during extraction, saving appended items", "url", c.URL, "processed", idx, "total", len(candidates), "error", ctxErr)
					break
				}

				var cfgErr *scoring.ConfigurationError
				if errors.As(err, &cfgErr) {
					result.Remaining = candidates[idx:]
					stopErr = err
					slog.Error("Ingestion stopped by scoring configuration error", "processed", idx, "total", len(candidates), "error", err)
					break
				}

				failure := &ExtractionFailure{URL: c.URL, Err: err}
				result.Failed = append(result.Failed, failure)
				slog.Warn("Skipping article", "url", c.URL, "error", failure)
				continue
			}

			items = append(items, store.Item{
				URL:             c.URL,
				Title:           c.Title,
				SourceURL:       c.SourceURL,
				Characteristics: characteristics,
			})
			result.Appended = append(result.Appended, c.URL)
		}

		if len(items) == before {
			slog.Debug("No new articles to save")
			return nil
		}

		return i.store.Save(items)
	})
	if err != nil {
		return Result{Failed: result.Failed}, fmt.Errorf("ingestion run failed: %w", err)
	}

	i.metrics.ObserveIngest(len(result.Appended), len(result.Failed))

	if stopErr != nil {
		return result, fmt.Errorf("ingestion stopped: %w", stopErr)
	}

	slog.Info("Ingestion completed",
		"appended", len(result.Appended),
		"failed", len(result.Failed),
		"remaining", len(result.Remaining),
		"duration", time.Since(start))

	return result, nil
}
