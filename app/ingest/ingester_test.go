package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-priority/app/lock"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

type fakeExtractor struct {
	results map[string]map[string]string
	calls   int
	onCall  func(calls int) error
}

func (f *fakeExtractor) Extract(ctx context.Context, rawText string) (map[string]string, error) {
	f.calls++
	if f.onCall != nil {
		if err := f.onCall(f.calls); err != nil {
			return nil, err
		}
	}
	characteristics, ok := f.results[rawText]
	if !ok {
		return nil, errors.New("model returned an unknown topic")
	}
	return characteristics, nil
}

type failingStore struct {
	*store.Store
}

func (failingStore) Save([]store.Item) error {
	return errors.New("disk full")
}

func setup(t *testing.T, existing []store.Item) (*store.Store, *lock.Marker) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority_queue.json")
	s := store.New(path)
	if existing != nil {
		require.NoError(t, s.Save(existing))
	}
	return s, lock.NewMarker(lock.MarkerPath(path), lock.WithPollInterval(5*time.Millisecond))
}

func candidates() []Candidate {
	return []Candidate{
		{URL: "https://example.com/1", Title: "One", SourceURL: "https://example.com/rss", RawText: "security text"},
		{URL: "https://example.com/2", Title: "Two", SourceURL: "https://example.com/rss", RawText: "garbage"},
		{URL: "https://example.com/3", Title: "Three", SourceURL: "https://example.com/rss", RawText: "news text"},
	}
}

func extractor() *fakeExtractor {
	return &fakeExtractor{results: map[string]map[string]string{
		"security text": {"topic": "security"},
		"news text":     {"topic": "news"},
	}}
}

func TestIngester_AppendsAndSkipsFailures(t *testing.T) {
	existing := []store.Item{{URL: "https://example.com/0", Characteristics: map[string]string{"topic": "news"}}}
	s, marker := setup(t, existing)

	result, err := NewIngester(s, marker, extractor()).Run(context.Background(), candidates())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/1", "https://example.com/3"}, result.Appended)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "https://example.com/2", result.Failed[0].URL)
	assert.Empty(t, result.Remaining)

	items := s.Load()
	require.Len(t, items, 3)
	assert.Equal(t, "https://example.com/0", items[0].URL)
	assert.Equal(t, store.Item{
		URL:             "https://example.com/1",
		Title:           "One",
		SourceURL:       "https://example.com/rss",
		Characteristics: map[string]string{"topic": "security"},
	}, items[1])
	assert.Equal(t, "https://example.com/3", items[2].URL)

	_, err = os.Stat(marker.Path())
	assert.True(t, os.IsNotExist(err), "lock must be released")
}

func TestIngester_ExtractionFailureUnwraps(t *testing.T) {
	s, marker := setup(t, nil)
	result, err := NewIngester(s, marker, extractor()).Run(context.Background(), candidates()[1:2])
	require.NoError(t, err)

	require.Len(t, result.Failed, 1)
	var failure *ExtractionFailure
	require.True(t, errors.As(error(result.Failed[0]), &failure))
	assert.Contains(t, failure.Error(), "https://example.com/2")
	assert.Empty(t, s.Load())
}

func TestIngester_SaveErrorReleasesLock(t *testing.T) {
	s, marker := setup(t, nil)

	_, err := NewIngester(failingStore{s}, marker, extractor()).Run(context.Background(), candidates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, statErr := os.Stat(marker.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngester_CancelledMidRunStillSaves(t *testing.T) {
	s, marker := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := extractor()
	ex.onCall = func(calls int) error {
		if calls == 1 {
			cancel()
		}
		return nil
	}

	result, err := NewIngester(s, marker, ex).Run(ctx, candidates())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/1"}, result.Appended)
	assert.Len(t, result.Remaining, 2)
	assert.Equal(t, 1, ex.calls)

	items := s.Load()
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/1", items[0].URL)
}

func TestIngester_WaitsForHeldLock(t *testing.T) {
	s, marker := setup(t, nil)
	require.NoError(t, marker.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ex := extractor()
	_, err := NewIngester(s, marker, ex).Run(ctx, candidates())
	require.Error(t, err)
	assert.Equal(t, 0, ex.calls)

	require.NoError(t, marker.Release())
}

func TestIngester_NoCandidates(t *testing.T) {
	s, marker := setup(t, nil)
	ex := extractor()

	result, err := NewIngester(s, marker, ex).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Appended)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngester_CancelledDuringExtractionKeepsCandidate(t *testing.T) {
	s, marker := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := extractor()
	ex.onCall = func(calls int) error {
		if calls == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	result, err := NewIngester(s, marker, ex).Run(ctx, candidates())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/1"}, result.Appended)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Remaining, 2)
	assert.Equal(t, "https://example.com/2", result.Remaining[0].URL)

	require.Len(t, s.Load(), 1)
}

func TestIngester_ConfigurationErrorStopsRun(t *testing.T) {
	s, marker := setup(t, nil)

	ex := extractor()
	ex.onCall = func(calls int) error {
		if calls >= 2 {
			return &scoring.ConfigurationError{Path: "scoring.json", Err: errors.New("unexpected end of JSON input")}
		}
		return nil
	}

	result, err := NewIngester(s, marker, ex).Run(context.Background(), candidates())
	require.Error(t, err)

	var cfgErr *scoring.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	assert.Equal(t, []string{"https://example.com/1"}, result.Appended)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Remaining, 2)
	assert.Equal(t, 2, ex.calls)

	items := s.Load()
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/1", items[0].URL)

	_, statErr := os.Stat(marker.Path())
	assert.True(t, os.IsNotExist(statErr), "lock must be released")
}
