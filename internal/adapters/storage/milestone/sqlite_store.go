package milestone

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wikimasters/internal/adapters/storage"
	domain "wikimasters/internal/domain/milestone"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Claim inserts a claim for an (article, threshold) pair.
// PRE: entity has been validated
// POST: Returns true if this call created the row, false if it already existed
func (s *SQLiteStore) Claim(ctx context.Context, c domain.Claim) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO article_milestone (id, article_id, threshold, claimed_at, notified, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(article_id, threshold) DO NOTHING`,
		c.ID, c.ArticleID, c.Threshold, c.ClaimedAt.UTC().Format(storage.DateLayout), boolToInt(c.Notified), c.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("claim milestone %d for article %d: %w", c.Threshold, c.ArticleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkNotified marks a claim as delivered.
// PRE: id is non-empty
// POST: notified is set and any earlier error is cleared
func (s *SQLiteStore) MarkNotified(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE article_milestone SET notified = 1, error_message = '' WHERE id = ?`, id)
	return err
}

// MarkFailed records a delivery error against a claim.
// PRE: id is non-empty
// POST: error_message is set, attempts is incremented and the claim stays in place
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE article_milestone
		 SET notified = 0, error_message = ?, attempts = attempts + 1, last_attempted_at = ?
		 WHERE id = ?`, reason, at.UTC().Format(storage.DateLayout), id)
	return err
}

// ListFailed retrieves undelivered claims that still have attempts left: claims with a
// recorded failure, and claims taken before staleBefore that were never settled.
// PRE: maxAttempts > 0, limit > 0
// POST: Returns at most limit claims, oldest claim first
func (s *SQLiteStore) ListFailed(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+claimColumns+`
		 FROM article_milestone
		 WHERE notified = 0 AND attempts < ?
		   AND (error_message != '' OR julianday(claimed_at) <= julianday(?))
		 ORDER BY julianday(claimed_at) ASC, id ASC LIMIT ?`,
		maxAttempts, staleBefore.UTC().Format(storage.DateLayout), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ListByArticleID retrieves all claims for an article.
// PRE: articleID > 0
// POST: Returns claims ordered by threshold ascending
func (s *SQLiteStore) ListByArticleID(ctx context.Context, articleID int64) ([]domain.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+claimColumns+`
		 FROM article_milestone WHERE article_id = ? ORDER BY threshold ASC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

const claimColumns = `id, article_id, threshold, claimed_at, notified, error_message, attempts, last_attempted_at`

func scanClaims(rows *sql.Rows) ([]domain.Claim, error) {
	var results []domain.Claim
	for rows.Next() {
		var item domain.Claim
		var claimedAt, lastAttemptedAt string
		var notified int
		if err := rows.Scan(&item.ID, &item.ArticleID, &item.Threshold, &claimedAt, &notified,
			&item.ErrorMessage, &item.Attempts, &lastAttemptedAt); err != nil {
			return nil, err
		}
		item.ClaimedAt, _ = time.Parse(storage.DateLayout, claimedAt)
		if lastAttemptedAt != "" {
			item.LastAttemptedAt, _ = time.Parse(storage.DateLayout, lastAttemptedAt)
		}
		item.Notified = notified != 0
		results = append(results, item)
	}
	return results, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
