package database

import (
	"database/sql"
	"time"
)

type Feed struct {
	Name          string // Configuration feed identifier derived from filename
	FeedURL       string // RSS/Atom feed URL from configuration
	Link          string // Homepage URL from the feed's <link> element
	Title         string
	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Seen URL statuses.
const (
	SeenStatusPending = "pending" // discovered, waiting for extraction
	SeenStatusQueued  = "queued"  // appended to the priority store
	SeenStatusFailed  = "failed"
)

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
