package database

import (
	"time"
)

type FeedRepositoryInterface interface {
	GetFeed(feedName string) (*Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(feedName, feedURL string) error
	UpdateFeedMetadata(feedName, title, link string, fetchedAt, nextFetch time.Time) error
}

type SeenRepositoryInterface interface {
	MarkSeen(url, feedName string) (bool, error)
	UpdateStatus(url, status, errMsg string) error
	Forget(url string) error
	ResetPending() (int, error)
	GetStatusCounts() (map[string]int, error)
}
