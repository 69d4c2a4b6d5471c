package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/rss-priority/app/metrics"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

var (
	ErrEmptyQueue     = errors.New("queue is empty")
	ErrNotInitialized = errors.New("queue is not initialized")
)

type Persister interface {
	Load() []store.Item
	Save(items []store.Item) error
}

type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

type RulesSource interface {
	Load() (*scoring.RuleSet, error)
}

type Ranked struct {
	Priority int
	Item     store.Item
}

// Queue is the consumer's in-memory mirror of the store. Serving never
// touches the cross-process lock; only Flush does.
type Queue struct {
	store   Persister
	locker  Locker
	rules   RulesSource
	metrics *metrics.Metrics

	mu    sync.Mutex
	items []store.Item
	ready bool
}

type Option func(*Queue)

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func New(persister Persister, locker Locker, rules RulesSource, opts ...Option) *Queue {
	q := &Queue{
		store:  persister,
		locker: locker,
		rules:  rules,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Init loads the store once without taking the lock. Later calls do nothing.
func (q *Queue) Init() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready {
		return
	}

	q.items = q.store.Load()
	q.ready = true
	q.metrics.SetQueueItems(len(q.items))

	slog.Info("Queue initialized", "items", len(q.items))
}

// ServeTop removes and returns the highest scoring item. Among equal scores
// the earliest inserted item wins.
func (q *Queue) ServeTop() (int, store.Item, error) {
	rules, err := q.rules.Load()
	if err != nil {
		q.metrics.ObserveServe(metrics.ResultConfigError)
		return 0, store.Item{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.metrics.ObserveServe(metrics.ResultEmpty)
		return 0, store.Item{}, ErrEmptyQueue
	}

	best := 0
	bestScore := rules.Score(q.items[0].Characteristics, q.items[0].SourceURL)
	for i := 1; i < len(q.items); i++ {
		if score := rules.Score(q.items[i].Characteristics, q.items[i].SourceURL); score > bestScore {
			best, bestScore = i, score
		}
	}

	item := q.items[best]
	q.items = slices.Delete(q.items, best, best+1)

	q.metrics.ObserveServe(metrics.ResultOK)
	q.metrics.SetQueueItems(len(q.items))

	slog.Info("Article served", "url", item.URL, "priority", bestScore, "remaining", len(q.items))

	return bestScore, item, nil
}

// Ranked scores every cached item without removing any. The first entry is
// what ServeTop would return.
func (q *Queue) Ranked() ([]Ranked, error) {
	rules, err := q.rules.Load()
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	ranked := make([]Ranked, 0, len(q.items))
	for _, item := range q.items {
		ranked = append(ranked, Ranked{
			Priority: rules.Score(item.Characteristics, item.SourceURL),
			Item:     item,
		})
	}
	q.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	return ranked, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Snapshot() []store.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Flush writes the whole cache to the store under the cross-process lock.
// The cross-process lock is always taken before the cache mutex.
func (q *Queue) Flush(ctx context.Context) error {
	start := time.Now()
	var count int

	err := q.locker.WithLock(ctx, func() error {
		q.mu.Lock()
		defer q.mu.Unlock()

		if !q.ready {
			return ErrNotInitialized
		}

		count = len(q.items)
		return q.store.Save(q.items)
	})

	q.metrics.ObserveFlush(err, time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to flush queue: %w", err)
	}

	slog.Debug("Queue flushed", "items", count, "duration", time.Since(start))
	return nil
}

// Close performs the final flush before shutdown.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	ready := q.ready
	q.mu.Unlock()

	if !ready {
		return nil
	}

	if err := q.Flush(ctx); err != nil {
		return err
	}

	slog.Info("Queue closed", "items", q.Len())
	return nil
}
