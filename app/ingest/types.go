package ingest

import (
	"context"
	"fmt"

	"github.com/lysyi3m/rss-priority/app/store"
)

// Candidate is an article waiting for characteristic extraction.
type Candidate struct {
	URL       string
	Title     string
	SourceURL string
	RawText   string
}

type Extractor interface {
	Extract(ctx context.Context, rawText string) (map[string]string, error)
}

type Persister interface {
	Load() []store.Item
	Save(items []store.Item) error
}

type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

type ExtractionFailure struct {
	URL string
	Err error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

type Result struct {
	Appended []string
	Failed   []*ExtractionFailure
	// Remaining holds candidates not attempted because the run was cancelled
	// or the scoring configuration could not be loaded.
	Remaining []Candidate
}
