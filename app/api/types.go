package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lysyi3m/rss-priority/app/feed"
	"github.com/lysyi3m/rss-priority/app/queue"
	"github.com/lysyi3m/rss-priority/app/scoring"
	"github.com/lysyi3m/rss-priority/app/store"
)

type QueueInterface interface {
	ServeTop() (int, store.Item, error)
	Ranked() ([]queue.Ranked, error)
	Len() int
}

type FlusherInterface interface {
	FlushNow(ctx context.Context) error
	LastFlush() (time.Time, error)
}

type RulesInterface interface {
	Load() (*scoring.RuleSet, error)
	Last() (*scoring.RuleSet, time.Time)
}

type GeneratorInterface interface {
	Run(channel feed.PreviewChannel, items []feed.PreviewItem) (string, error)
}

var (
	_ QueueInterface     = (*queue.Queue)(nil)
	_ FlusherInterface   = (*queue.Flusher)(nil)
	_ RulesInterface     = (*scoring.Loader)(nil)
	_ GeneratorInterface = (*feed.Generator)(nil)
)

type Options struct {
	PublicURL string
	Version   string
	// FlushTimeout bounds the lock wait of a manual flush.
	FlushTimeout time.Duration
}

type Handler struct {
	queue     QueueInterface
	flusher   FlusherInterface
	rules     RulesInterface
	generator GeneratorInterface
	metrics   http.Handler
	options   Options
	startedAt time.Time
}

type NextResponse struct {
	Priority        int               `json:"priority"`
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	SourceURL       string            `json:"source_url"`
	Characteristics map[string]string `json:"characteristics"`
	Message         string            `json:"message"`
}

type RankedEntry struct {
	Priority int    `json:"priority"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}
