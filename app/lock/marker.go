package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrLockHeld = errors.New("lock is held by another process")

const (
	DefaultPollInterval = time.Second
	DefaultWarnAfter    = 5 * time.Minute
)

// Lease is written into the marker for operators. Only the marker's
// existence matters to the protocol.
type Lease struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Marker is an advisory cross-process lock backed by a marker file.
// A crashed holder leaves the marker behind; it must be removed by hand.
type Marker struct {
	path         string
	pollInterval time.Duration
	warnAfter    time.Duration
}

type Option func(*Marker)

func WithPollInterval(d time.Duration) Option {
	return func(m *Marker) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithWarnAfter sets how long Acquire waits before logging that the marker may be orphaned.
func WithWarnAfter(d time.Duration) Option {
	return func(m *Marker) {
		m.warnAfter = d
	}
}

// MarkerPath derives the marker location from the store path: data.json becomes data.lock.
func MarkerPath(storePath string) string {
	return strings.TrimSuffix(storePath, filepath.Ext(storePath)) + ".lock"
}

func NewMarker(path string, opts ...Option) *Marker {
	m := &Marker{
		path:         path,
		pollInterval: DefaultPollInterval,
		warnAfter:    DefaultWarnAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Marker) Path() string {
	return m.path
}

// Acquire blocks until the marker is created by this caller or ctx is done.
func (m *Marker) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	start := time.Now()
	lastWarn := start

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := m.tryCreate()
		if err == nil || errors.Is(err, ErrLockHeld) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(m.pollInterval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			if m.warnAfter <= 0 || time.Since(lastWarn) < m.warnAfter {
				return
			}
			lastWarn = time.Now()
			m.warnOrphaned(time.Since(start))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", m.path, err)
	}

	slog.Debug("Lock acquired", "path", m.path, "waited", time.Since(start))
	return nil
}

// Release removes the marker. A marker that is already gone is not an error.
func (m *Marker) Release() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to release lock %s: %w", m.path, err)
	}
	slog.Debug("Lock released", "path", m.path)
	return nil
}

// WithLock runs fn while holding the marker and releases it on every exit path.
func (m *Marker) WithLock(ctx context.Context, fn func() error) (err error) {
	if err := m.Acquire(ctx); err != nil {
		return err
	}

	defer func() {
		if releaseErr := m.Release(); releaseErr != nil {
			slog.Error("Failed to release lock", "path", m.path, "error", releaseErr)
			if err == nil {
				err = releaseErr
			}
		}
	}()

	return fn()
}

// Holder reads the lease of the current holder. A zero-byte marker yields a nil lease.
func (m *Marker) Holder() (*Lease, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("failed to parse lease: %w", err)
	}
	return &lease, nil
}

func (m *Marker) tryCreate() error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrLockHeld
		}
		return err
	}

	host, _ := os.Hostname()
	lease := Lease{
		PID:        os.Getpid(),
		Host:       host,
		AcquiredAt: time.Now().UTC(),
	}

	if err := json.NewEncoder(f).Encode(lease); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to write lease: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to sync marker: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(m.path)
		return fmt.Errorf("failed to close marker: %w", err)
	}

	return nil
}

func (m *Marker) warnOrphaned(waited time.Duration) {
	attrs := []any{"path", m.path, "waited", waited.Round(time.Second)}

	lease, err := m.Holder()
	switch {
	case err != nil:
		attrs = append(attrs, "lease_error", err)
	case lease != nil:
		attrs = append(attrs, "holder_pid", lease.PID, "holder_host", lease.Host, "held_since", lease.AcquiredAt)
	}

	slog.Warn("Lock still held, marker may be orphaned", attrs...)
}
