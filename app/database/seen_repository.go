package database

import (
	"fmt"
	"time"
)

var _ SeenRepositoryInterface = (*SeenRepository)(nil)

// SeenRepository remembers every article URL the producer has discovered.
type SeenRepository struct {
	db *DB
}

func NewSeenRepository(db *DB) *SeenRepository {
	return &SeenRepository{db: db}
}

// MarkSeen records url as pending and reports whether this is the first time it was seen.
func (r *SeenRepository) MarkSeen(url, feedName string) (bool, error) {
	now := toUnix(time.Now())

	result, err := r.db.Exec(`
		INSERT INTO seen_urls (url, feed_name, status, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`, url, feedName, SeenStatusPending, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark URL as seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check inserted rows: %w", err)
	}

	return rows == 1, nil
}

func (r *SeenRepository) UpdateStatus(url, status, errMsg string) error {
	switch status {
	case SeenStatusPending, SeenStatusQueued, SeenStatusFailed:
	default:
		return fmt.Errorf("unknown seen status %q", status)
	}

	_, err := r.db.Exec(`
		UPDATE seen_urls SET status = ?, error = ?, updated_at = ? WHERE url = ?
	`, status, errMsg, toUnix(time.Now()), url)
	if err != nil {
		return fmt.Errorf("failed to update URL status: %w", err)
	}

	return nil
}

// Forget removes url so the next fetch treats it as new again.
func (r *SeenRepository) Forget(url string) error {
	if _, err := r.db.Exec(`DELETE FROM seen_urls WHERE url = ?`, url); err != nil {
		return fmt.Errorf("failed to forget URL: %w", err)
	}
	return nil
}

// ResetPending drops URLs that were discovered but never ingested. The buffer
// does not survive a restart, so at startup every pending row is orphaned.
func (r *SeenRepository) ResetPending() (int, error) {
	result, err := r.db.Exec(`DELETE FROM seen_urls WHERE status = ?`, SeenStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to reset pending URLs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check deleted rows: %w", err)
	}

	return int(rows), nil
}

func (r *SeenRepository) GetStatusCounts() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM seen_urls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count URL statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
