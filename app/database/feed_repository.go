package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ FeedRepositoryInterface = (*FeedRepository)(nil)

// FeedRepository keeps per-feed fetch bookkeeping so refresh intervals survive restarts.
type FeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

func (r *FeedRepository) UpsertFeed(feedName, feedURL string) error {
	now := toUnix(time.Now())

	_, err := r.db.Exec(`
		INSERT INTO feeds (name, feed_url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			feed_url = excluded.feed_url,
			updated_at = excluded.updated_at
	`, feedName, feedURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

func (r *FeedRepository) GetFeed(feedName string) (*Feed, error) {
	var feed Feed
	var lastFetched, nextFetch sql.NullInt64
	var createdAt, updatedAt int64

	err := r.db.QueryRow(`
		SELECT name, feed_url, title, link, last_fetched_at, next_fetch_at, created_at, updated_at
		FROM feeds
		WHERE name = ?
	`, feedName).Scan(&feed.Name, &feed.FeedURL, &feed.Title, &feed.Link, &lastFetched, &nextFetch, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	feed.LastFetchedAt = fromNullUnix(lastFetched)
	feed.NextFetchAt = fromNullUnix(nextFetch)
	feed.CreatedAt = time.Unix(createdAt, 0).UTC()
	feed.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &feed, nil
}

func (r *FeedRepository) GetFeedCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

func (r *FeedRepository) UpdateFeedMetadata(feedName, title, link string, fetchedAt, nextFetch time.Time) error {
	result, err := r.db.Exec(`
		UPDATE feeds
		SET title = ?, link = ?, last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, title, link, toUnix(fetchedAt), toUnix(nextFetch), toUnix(time.Now()), feedName)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("feed %s not found", feedName)
	}

	return nil
}
