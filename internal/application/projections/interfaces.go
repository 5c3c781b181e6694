package projections

import (
	"context"
	"time"

	domainArticle "wikimasters/internal/domain/article"
)

// ArticleStore interface for article queries.
type ArticleStore interface {
	ListSummaries(ctx context.Context) ([]domainArticle.Summary, error)
	GetDetail(ctx context.Context, id int64) (domainArticle.Detail, bool, error)
}

// Cache interface for the shared key-value cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
