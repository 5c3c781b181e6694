package milestone

import (
	"context"
	"time"

	domain "wikimasters/internal/domain/milestone"
)

// Store persists celebration claims.
type Store interface {
	// Claim inserts the claim unless (ArticleID, Threshold) is already taken.
	// POST: claimed is true only for the single caller whose insert succeeded
	Claim(ctx context.Context, c domain.Claim) (claimed bool, err error)
	MarkNotified(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
	// ListFailed returns undelivered claims with fewer than maxAttempts failures,
	// including claims taken before staleBefore that were never settled.
	ListFailed(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Claim, error)
	ListByArticleID(ctx context.Context, articleID int64) ([]domain.Claim, error)
}
