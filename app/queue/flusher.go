package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Flusher periodically writes the cache back to the store.
type Flusher struct {
	queue    *Queue
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.RWMutex
	lastFlush time.Time
	lastErr   error
}

func NewFlusher(q *Queue, interval time.Duration) *Flusher {
	return &Flusher{
		queue:    q,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (f *Flusher) Start(ctx context.Context) {
	if f.cancel != nil {
		return
	}

	ctx, f.cancel = context.WithCancel(ctx)

	go f.run(ctx)

	slog.Info("Flusher started", "interval", f.interval)
}

func (f *Flusher) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done

	slog.Info("Flusher stopped")
}

// FlushNow runs a flush outside the ticker and records its outcome.
func (f *Flusher) FlushNow(ctx context.Context) error {
	err := f.queue.Flush(ctx)
	f.record(err)
	return err
}

func (f *Flusher) LastFlush() (time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastFlush, f.lastErr
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

// tick bounds the lock wait by one interval so a stuck marker cannot pile up ticks.
func (f *Flusher) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, f.interval)
	defer cancel()

	if err := f.FlushNow(tickCtx); err != nil {
		slog.Error("Flush tick abandoned", "error", err)
	}
}

func (f *Flusher) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFlush = time.Now()
	f.lastErr = err
}
