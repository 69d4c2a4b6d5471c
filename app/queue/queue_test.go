package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-priority/app/lock"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

type staticRules struct {
	rs  *scoring.RuleSet
	err error
}

func (s *staticRules) Load() (*scoring.RuleSet, error) {
	return s.rs, s.err
}

func topicRules(t *testing.T) *staticRules {
	t.Helper()
	rs, err := scoring.NewRuleSet(
		scoring.RuleTable{"topic_rules": {"security": 10, "news": 2}},
		scoring.RuleSpec{{RuleKey: "topic_rules", CharacteristicKey: "topic"}},
	)
	require.NoError(t, err)
	return &staticRules{rs: rs}
}

type fixture struct {
	store  *store.Store
	marker *lock.Marker
}

func newFixture(t *testing.T, items []store.Item) fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority_queue.json")
	s := store.New(path)
	if items != nil {
		require.NoError(t, s.Save(items))
	}
	return fixture{
		store:  s,
		marker: lock.NewMarker(lock.MarkerPath(path), lock.WithPollInterval(5*time.Millisecond)),
	}
}

func scenarioItems() []store.Item {
	return []store.Item{
		{URL: "a", Characteristics: map[string]string{"topic": "security"}},
		{URL: "b", Characteristics: map[string]string{"topic": "news"}},
	}
}

func TestQueue_ServeTopScenario(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	priority, item, err := q.ServeTop()
	require.NoError(t, err)
	assert.Equal(t, 10, priority)
	assert.Equal(t, "a", item.URL)

	priority, item, err = q.ServeTop()
	require.NoError(t, err)
	assert.Equal(t, 2, priority)
	assert.Equal(t, "b", item.URL)

	_, _, err = q.ServeTop()
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestQueue_ServeTopEmptyIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	for i := 0; i < 3; i++ {
		_, _, err := q.ServeTop()
		assert.ErrorIs(t, err, ErrEmptyQueue)
		assert.Equal(t, 0, q.Len())
	}
}

func TestQueue_ServeTopBeforeInit(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))

	_, _, err := q.ServeTop()
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestQueue_ServeTopTiesFavourInsertionOrder(t *testing.T) {
	f := newFixture(t, []store.Item{
		{URL: "first", Characteristics: map[string]string{"topic": "news"}},
		{URL: "second", Characteristics: map[string]string{"topic": "news"}},
		{URL: "third", Characteristics: map[string]string{"topic": "news"}},
	})
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	for _, want := range []string{"first", "second", "third"} {
		_, item, err := q.ServeTop()
		require.NoError(t, err)
		assert.Equal(t, want, item.URL)
	}
}

func TestQueue_ServeTopConfigurationErrorLeavesCache(t *testing.T) {
	f := newFixture(t, scenarioItems())
	rules := &staticRules{err: &scoring.ConfigurationError{Path: "rules.json", Err: errors.New("bad json")}}
	q := New(f.store, f.marker, rules)
	q.Init()

	_, _, err := q.ServeTop()

	var cfgErr *scoring.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, scenarioItems(), q.Snapshot())
}

func TestQueue_ServeTopDoesNotTakeLock(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	require.NoError(t, f.marker.Acquire(context.Background()))
	defer f.marker.Release()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = q.ServeTop()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeTop blocked on the cross-process lock")
	}
}

func TestQueue_Ranked(t *testing.T) {
	f := newFixture(t, []store.Item{
		{URL: "low", Characteristics: map[string]string{"topic": "sports"}},
		{URL: "news-1", Characteristics: map[string]string{"topic": "news"}},
		{URL: "top", Characteristics: map[string]string{"topic": "security"}},
		{URL: "news-2", Characteristics: map[string]string{"topic": "news"}},
	})
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	ranked, err := q.Ranked()
	require.NoError(t, err)

	var urls []string
	for _, r := range ranked {
		urls = append(urls, r.Item.URL)
	}
	assert.Equal(t, []string{"top", "news-1", "news-2", "low"}, urls)
	assert.Equal(t, 4, q.Len())
}

func TestQueue_FlushThenReload(t *testing.T) {
	f := newFixture(t, []store.Item{
		{URL: "a", Title: "A", SourceURL: "https://a.example/rss", Characteristics: map[string]string{"topic": "security"}},
		{URL: "b", Title: "B", SourceURL: "https://b.example/rss", Characteristics: map[string]string{"topic": "news"}},
		{URL: "c", Title: "C", SourceURL: "https://a.example/rss", Characteristics: map[string]string{"topic": "sports"}},
	})
	q := New(f.store, f.marker, topicRules(t))
	q.Init()

	_, _, err := q.ServeTop()
	require.NoError(t, err)

	flusher := NewFlusher(q, time.Hour)
	require.NoError(t, flusher.FlushNow(context.Background()))

	flushedAt, flushErr := flusher.LastFlush()
	assert.False(t, flushedAt.IsZero())
	assert.NoError(t, flushErr)

	_, err = os.Stat(f.marker.Path())
	assert.True(t, os.IsNotExist(err), "flush must release the marker")

	fresh := New(store.New(f.store.Path()), f.marker, topicRules(t))
	fresh.Init()
	assert.Equal(t, q.Snapshot(), fresh.Snapshot())
	assert.Equal(t, 2, fresh.Len())
}

func TestQueue_FlushBeforeInitDoesNotWipeStore(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))

	err := q.Flush(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Len(t, f.store.Load(), 2)
}

func TestQueue_FlushTimesOutOnHeldLock(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))
	q.Init()
	_, _, err := q.ServeTop()
	require.NoError(t, err)

	require.NoError(t, f.marker.Acquire(context.Background()))
	defer f.marker.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = q.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 1, q.Len(), "cache is untouched by a failed flush")
	assert.Len(t, f.store.Load(), 2, "store is untouched by a failed flush")
}

func TestFlusher_PeriodicTick(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))
	q.Init()
	_, _, err := q.ServeTop()
	require.NoError(t, err)

	flusher := NewFlusher(q, 20*time.Millisecond)
	flusher.Start(context.Background())
	defer flusher.Stop()

	require.Eventually(t, func() bool {
		return len(f.store.Load()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_CloseFlushes(t *testing.T) {
	f := newFixture(t, scenarioItems())
	q := New(f.store, f.marker, topicRules(t))
	q.Init()
	_, _, err := q.ServeTop()
	require.NoError(t, err)

	require.NoError(t, q.Close(context.Background()))

	items := f.store.Load()
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].URL)
}

func TestQueue_ConcurrentServeAndFlush(t *testing.T) {
	const total = 200

	items := make([]store.Item, 0, total)
	for i := range total {
		topic := "news"
		if i%3 == 0 {
			topic = "security"
		}
		items = append(items, store.Item{
			URL:             fmt.Sprintf("https://example.com/%d", i),
			Characteristics: map[string]string{"topic": topic},
		})
	}

	f := newFixture(t, items)
	q := New(f.store, f.marker, topicRules(t))
	q.Init()
	flusher := NewFlusher(q, time.Minute)

	var (
		mu     sync.Mutex
		served = make(map[string]int)
		wg     sync.WaitGroup
	)

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, item, err := q.ServeTop()
				if errors.Is(err, ErrEmptyQueue) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				served[item.URL]++
				mu.Unlock()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			assert.NoError(t, flusher.FlushNow(context.Background()))
		}
	}()

	wg.Wait()
	require.NoError(t, q.Close(context.Background()))

	require.Len(t, served, total)
	for url, n := range served {
		assert.Equal(t, 1, n, "served more than once: %s", url)
	}
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, f.store.Load())
}
