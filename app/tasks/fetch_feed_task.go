package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/rss-priority/app/database"
	"github.com/lysyi3m/rss-priority/app/feed"
	"github.com/lysyi3m/rss-priority/app/ingest"
)

const maxBodyBytes = 10 << 20

// FetchFeedTask discovers new articles in one feed and buffers their text for ingestion.
type FetchFeedTask struct {
	Task
	FeedConfig       *feed.Config
	httpClient       *http.Client
	parser           *feed.Parser
	filterer         *feed.Filterer
	contentExtractor *feed.ContentExtractor
	feedRepo         database.FeedRepositoryInterface
	seenRepo         database.SeenRepositoryInterface
	buffer           *ingest.Buffer
	userAgent        string
}

func NewFetchFeedTask(feedConfig *feed.Config, deps Deps) *FetchFeedTask {
	return &FetchFeedTask{
		Task:             NewTask(TaskTypeFetchFeed, feedConfig.Name),
		FeedConfig:       feedConfig,
		httpClient:       deps.HTTPClient,
		parser:           deps.Parser,
		filterer:         deps.Filterer,
		contentExtractor: deps.ContentExtractor,
		feedRepo:         deps.FeedRepo,
		seenRepo:         deps.SeenRepo,
		buffer:           deps.Buffer,
		userAgent:        deps.UserAgent,
	}
}

func (t *FetchFeedTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !t.FeedConfig.Settings.Enabled {
		slog.Debug("Feed disabled, skipping", "feed", t.FeedName)
		return nil
	}

	fetchedAt := time.Now().UTC()

	data, _, err := t.fetch(ctx, t.FeedConfig.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	metadata, items, err := t.parser.Run(data)
	if err != nil {
		return fmt.Errorf("failed to parse feed: %w", err)
	}

	total := len(items)
	if limit := t.FeedConfig.Settings.MaxItems; limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	items, filteredCount := t.filterer.Run(items, t.FeedConfig)

	duplicateCount := 0
	errorCount := 0
	newCount := 0

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if item.Link == "" {
			slog.Debug("Item has no link, skipping", "feed", t.FeedName, "guid", item.GUID)
			continue
		}

		isNew, err := t.seenRepo.MarkSeen(item.Link, t.FeedName)
		if err != nil {
			return fmt.Errorf("failed to check seen URL: %w", err)
		}
		if !isNew {
			duplicateCount++
			continue
		}

		text, err := t.articleText(ctx, item)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// interrupted, not broken: let the next fetch discover it again
				if err := t.seenRepo.Forget(item.Link); err != nil {
					slog.Error("Failed to forget URL", "url", item.Link, "error", err)
				}
				return ctxErr
			}

			errorCount++
			slog.Error("Failed to extract article text", "feed", t.FeedName, "url", item.Link, "error", err)
			if err := t.seenRepo.UpdateStatus(item.Link, database.SeenStatusFailed, err.Error()); err != nil {
				slog.Error("Failed to update URL status", "url", item.Link, "error", err)
			}
			continue
		}

		t.buffer.Add(ingest.Candidate{
			URL:       item.Link,
			Title:     item.Title,
			SourceURL: t.FeedConfig.URL,
			RawText:   text,
		})
		newCount++
	}

	nextFetch := fetchedAt.Add(time.Duration(t.FeedConfig.Settings.RefreshInterval) * time.Second)
	if err := t.feedRepo.UpdateFeedMetadata(t.FeedName, metadata.Title, metadata.Link, fetchedAt, nextFetch); err != nil {
		return fmt.Errorf("failed to store feed metadata: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"total", total,
		"filtered", filteredCount,
		"duplicates", duplicateCount,
		"errors", errorCount,
		"new", newCount)

	return nil
}

// articleText extracts the page's readable text, falling back to the feed's own
// content when the page cannot be fetched or yields nothing.
func (t *FetchFeedTask) articleText(ctx context.Context, item feed.Item) (string, error) {
	data, contentType, err := t.fetch(ctx, item.Link)
	if err == nil && !strings.Contains(strings.ToLower(contentType), "html") {
		err = fmt.Errorf("content type is not HTML: %s", contentType)
	}

	var text string
	if err == nil {
		text, err = t.contentExtractor.Run(data, item.Link)
	}
	if err == nil {
		return text, nil
	}

	if fallback := t.contentExtractor.TextFromHTML(item.Content + " " + item.Description); fallback != "" {
		slog.Debug("Using feed content as article text", "url", item.Link, "reason", err)
		return fallback, nil
	}

	return "", err
}

func (t *FetchFeedTask) fetch(ctx context.Context, url string) ([]byte, string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(t.FeedConfig.Settings.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
