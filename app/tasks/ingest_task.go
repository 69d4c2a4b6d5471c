package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-priority/app/database"
	"github.com/lysyi3m/rss-priority/app/ingest"
	"github.com/lysyi3m/rss-priority/app/scoring"
)

// IngestTask moves buffered candidates into the shared priority store.
type IngestTask struct {
	Task
	buffer   *ingest.Buffer
	ingester Ingester
	seenRepo database.SeenRepositoryInterface
}

func NewIngestTask(deps Deps) *IngestTask {
	return &IngestTask{
		Task:     NewTask(TaskTypeIngest, ""),
		buffer:   deps.Buffer,
		ingester: deps.Ingester,
		seenRepo: deps.SeenRepo,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {
	candidates := t.buffer.Drain()
	if len(candidates) == 0 {
		slog.Debug("No candidates to ingest")
		return nil
	}

	result, err := t.ingester.Run(ctx, candidates)

	// a configuration error still saved what was appended before it
	var cfgErr *scoring.ConfigurationError
	if err != nil && !errors.As(err, &cfgErr) {
		t.buffer.Requeue(candidates)
		return fmt.Errorf("failed to ingest candidates: %w", err)
	}

	if len(result.Remaining) > 0 {
		t.buffer.Requeue(result.Remaining)
	}

	for _, url := range result.Appended {
		if err := t.seenRepo.UpdateStatus(url, database.SeenStatusQueued, ""); err != nil {
			slog.Error("Failed to update URL status", "url", url, "error", err)
		}
	}

	for _, failure := range result.Failed {
		if err := t.seenRepo.UpdateStatus(failure.URL, database.SeenStatusFailed, failure.Err.Error()); err != nil {
			slog.Error("Failed to update URL status", "url", failure.URL, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"candidates", len(candidates),
		"appended", len(result.Appended),
		"failed", len(result.Failed),
		"requeued", len(result.Remaining))

	if err != nil {
		return fmt.Errorf("ingestion stopped, candidates requeued: %w", err)
	}

	return nil
}
