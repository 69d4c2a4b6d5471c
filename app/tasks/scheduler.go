package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-priority/app/database"
	"github.com/lysyi3m/rss-priority/app/feed"
	"github.com/lysyi3m/rss-priority/app/ingest"
)

const (
	taskTimeout       = 5 * time.Minute
	taskQueueSize     = 300
	finalIngestWindow = 2 * time.Minute
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Deps wires the scheduler and the tasks it creates.
type Deps struct {
	ConfigCache      *feed.ConfigCache
	FeedRepo         database.FeedRepositoryInterface
	SeenRepo         database.SeenRepositoryInterface
	HTTPClient       *http.Client
	Parser           *feed.Parser
	Filterer         *feed.Filterer
	ContentExtractor *feed.ContentExtractor
	Buffer           *ingest.Buffer
	Ingester         Ingester

	UserAgent   string
	Interval    time.Duration
	WorkerCount int
}

type Scheduler struct {
	deps      Deps
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(deps Deps) *Scheduler {
	if deps.WorkerCount < 1 {
		deps.WorkerCount = 1
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.deps.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Info("Scheduler started", "workers", s.deps.WorkerCount, "interval", s.deps.Interval)
}

// Stop cancels the pool and then ingests whatever is still buffered, so
// discovered articles are not stranded as pending.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()

	if s.deps.Buffer.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), finalIngestWindow)
		defer cancel()

		task := NewIngestTask(s.deps)
		task.Start()
		if err := task.Execute(ctx); err != nil {
			slog.Error("Final ingestion failed", "pending", s.deps.Buffer.Len(), "error", err)
		}
	}

	slog.Info("Scheduler stopped")
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// RunOnce fetches every enabled feed concurrently, bounded by the worker
// count, then runs a single ingestion pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	feedConfigs := s.deps.ConfigCache.GetEnabledConfigs()
	slog.Info("Running single pass", "feeds", len(feedConfigs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.WorkerCount)

	for _, feedConfig := range feedConfigs {
		g.Go(func() error {
			if err := s.runWithRetries(gctx, NewSyncFeedConfigTask(feedConfig, s.deps.FeedRepo)); err != nil {
				return nil
			}
			_ = s.runWithRetries(gctx, NewFetchFeedTask(feedConfig, s.deps))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil && s.deps.Buffer.Len() == 0 {
		return err
	}

	// ingestion still runs after cancellation so buffered articles are saved
	ingestCtx := context.WithoutCancel(ctx)
	return s.runWithRetries(ingestCtx, NewIngestTask(s.deps))
}

func (s *Scheduler) enqueueStartupTasks() {
	feedConfigs := s.deps.ConfigCache.GetEnabledConfigs()
	if len(feedConfigs) == 0 {
		slog.Warn("No enabled feed configurations found")
		return
	}

	slog.Debug("Processing feed configurations", "count", len(feedConfigs))

	for _, feedConfig := range feedConfigs {
		syncTask := NewSyncFeedConfigTask(feedConfig, s.deps.FeedRepo)
		if err := s.runTask(s.ctx, syncTask); err != nil {
			slog.Warn("Failed to sync feed config", "feed", feedConfig.Name, "error", err)
			continue
		}

		if err := s.EnqueueTask(NewFetchFeedTask(feedConfig, s.deps)); err != nil {
			slog.Warn("Failed to enqueue FetchFeedTask", "feed", feedConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	for _, feedConfig := range s.deps.ConfigCache.GetEnabledConfigs() {
		dbFeed, err := s.deps.FeedRepo.GetFeed(feedConfig.Name)
		if err != nil {
			slog.Warn("Failed to get feed from database, skipping", "feed", feedConfig.Name, "error", err)
			continue
		}
		if dbFeed == nil {
			slog.Warn("Feed not found in database, skipping", "feed", feedConfig.Name)
			continue
		}

		if dbFeed.NextFetchAt != nil && dbFeed.NextFetchAt.After(time.Now().UTC()) {
			slog.Debug("Feed not due for refresh yet", "feed", feedConfig.Name, "next_fetch_at", dbFeed.NextFetchAt)
			continue
		}

		if err := s.EnqueueTask(NewFetchFeedTask(feedConfig, s.deps)); err != nil {
			slog.Warn("Failed to enqueue FetchFeedTask", "feed", feedConfig.Name, "error", err)
		}
	}

	if s.deps.Buffer.Len() > 0 {
		if err := s.EnqueueTask(NewIngestTask(s.deps)); err != nil {
			slog.Warn("Failed to enqueue IngestTask", "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task TaskInterface) error {
	task.Start()

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	return task.Execute(taskCtx)
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	err := s.runTask(s.ctx, task)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(delay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "error", retryErr)
			}
		}
	}()
}

// runWithRetries is the synchronous counterpart of executeTask used by RunOnce.
func (s *Scheduler) runWithRetries(ctx context.Context, task TaskInterface) error {
	for {
		err := s.runTask(ctx, task)
		if err == nil {
			return nil
		}

		if !task.CanRetry() || ctx.Err() != nil {
			slog.Error("Task failed", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "error", err)
			return err
		}

		task.IncrementRetryCount()
		delay := retryDelay(task.GetRetryCount())
		slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
