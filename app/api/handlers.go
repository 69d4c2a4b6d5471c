package api

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-priority/app/extract"
	"github.com/lysyi3m/rss-priority/app/feed"
	"github.com/lysyi3m/rss-priority/app/queue"
	"github.com/lysyi3m/rss-priority/app/scoring"
)

const (
	statsTopN           = 10
	defaultFlushTimeout = time.Minute
)

func NewHandler(q QueueInterface, flusher FlusherInterface, rules RulesInterface, metrics http.Handler, options Options) *Handler {
	return &Handler{
		queue:     q,
		flusher:   flusher,
		rules:     rules,
		generator: feed.NewGenerator(),
		metrics:   metrics,
		options:   options,
		startedAt: time.Now(),
	}
}

// ServeNext hands out the highest priority article. It never waits on the store lock.
func (h *Handler) ServeNext(c *gin.Context) {
	priority, item, err := h.queue.ServeTop()

	var cfgErr *scoring.ConfigurationError
	switch {
	case errors.Is(err, queue.ErrEmptyQueue):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "queue is empty",
			"message": "No articles in the queue",
		})
	case errors.As(err, &cfgErr):
		slog.Error("Scoring configuration error", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "configuration error",
			"message": cfgErr.Error(),
		})
	case err != nil:
		slog.Error("Failed to serve next article", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, NextResponse{
			Priority:        priority,
			URL:             item.URL,
			Title:           item.Title,
			SourceURL:       item.SourceURL,
			Characteristics: item.Characteristics,
			Message:         fmt.Sprintf("[%d] %s", priority, item.URL),
		})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"queue":     h.queue.Len(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	}

	if flushedAt, err := h.flusher.LastFlush(); !flushedAt.IsZero() {
		health["last_flush_at"] = flushedAt.Format(time.RFC3339)
		health["last_flush_ok"] = err == nil
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"queue": h.queue.Len(),
	}

	flushedAt, flushErr := h.flusher.LastFlush()
	flush := map[string]interface{}{}
	if !flushedAt.IsZero() {
		flush["at"] = flushedAt.Format(time.RFC3339)
	}
	if flushErr != nil {
		flush["error"] = flushErr.Error()
	}
	stats["flush"] = flush

	if _, loadedAt := h.rules.Last(); !loadedAt.IsZero() {
		stats["rules_loaded_at"] = loadedAt.Format(time.RFC3339)
	}

	ranked, err := h.queue.Ranked()
	if err != nil {
		stats["ranking_error"] = err.Error()
	} else {
		top := make([]RankedEntry, 0, statsTopN)
		for i, r := range ranked {
			if i == statsTopN {
				break
			}
			top = append(top, RankedEntry{Priority: r.Priority, URL: r.Item.URL, Title: r.Item.Title})
		}
		stats["top"] = top
	}

	c.JSON(http.StatusOK, stats)
}

// GetQueueFeed renders the ranked queue as RSS without removing anything.
func (h *Handler) GetQueueFeed(c *gin.Context) {
	ranked, err := h.queue.Ranked()
	if err != nil {
		slog.Error("Failed to rank queue", "error", err)
		c.Status(http.StatusServiceUnavailable)
		return
	}

	items := make([]feed.PreviewItem, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, feed.PreviewItem{
			Priority:        r.Priority,
			URL:             r.Item.URL,
			Title:           r.Item.Title,
			SourceURL:       r.Item.SourceURL,
			Characteristics: r.Item.Characteristics,
		})
	}

	rss, err := h.generator.Run(feed.PreviewChannel{
		Title:    "RSS Priority queue",
		Link:     h.options.PublicURL,
		SelfLink: h.options.PublicURL + "/queue.xml",
		Version:  h.options.Version,
	}, items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) APIGetRules(c *gin.Context) {
	rules, err := h.rules.Load()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "configuration error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rule_sets": len(rules.Table),
		"rules":     rules.Spec,
		"allowed":   rules.Allowed,
		"schema":    extract.BuildSchema(rules),
	})
}

func (h *Handler) APIFlush(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), cmp.Or(h.options.FlushTimeout, defaultFlushTimeout))
	defer cancel()

	if err := h.flusher.FlushNow(ctx); err != nil {
		slog.Error("Manual flush failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "flush failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flushed": h.queue.Len(),
	})
}
