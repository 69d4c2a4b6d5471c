package tasks

import (
	"context"

	"github.com/lysyi3m/rss-priority/app/ingest"
)

// TaskSchedulerInterface is what the producer binary drives: either the
// long-running pool (Start/Stop) or a single pass over every feed (RunOnce).
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	RunOnce(ctx context.Context) error
}

type Ingester interface {
	Run(ctx context.Context, candidates []ingest.Candidate) (ingest.Result, error)
}
