package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	domainArticle "wikimasters/internal/domain/article"
)

// DefaultArticleListTTL is how long the cached listing is served before the store is queried again.
const DefaultArticleListTTL = 60 * time.Second

var tracer = otel.Tracer("wikimasters/projections")

// ArticleListDeps holds dependencies for ArticleList.
type ArticleListDeps struct {
	ArticleStore ArticleStore
	Cache        Cache         // nil always reads the store
	TTL          time.Duration // non-positive uses DefaultArticleListTTL
}

// ArticleListResult carries the listing and where it came from.
type ArticleListResult struct {
	Articles  []domainArticle.Summary
	FromCache bool
}

// QueryArticleList returns every article summary, read through the shared cache.
// PRE: none
// POST: A well-formed cached array is returned as-is; otherwise the store is queried and the cache refilled
// INVARIANT: cache failures never fail the query; store failures always do
func QueryArticleList(ctx context.Context, deps ArticleListDeps) (ArticleListResult, error) {
	ctx, span := tracer.Start(ctx, "articles.list")
	defer span.End()

	if deps.Cache != nil {
		if cached, ok := readCachedList(ctx, deps.Cache); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("articles.count", len(cached)))
			return ArticleListResult{Articles: cached, FromCache: true}, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	articles, err := deps.ArticleStore.ListSummaries(ctx)
	if err != nil {
		span.RecordError(err)
		return ArticleListResult{}, fmt.Errorf("list articles: %w", err)
	}
	span.SetAttributes(attribute.Int("articles.count", len(articles)))

	if deps.Cache != nil {
		ttl := deps.TTL
		if ttl <= 0 {
			ttl = DefaultArticleListTTL
		}
		if payload, err := json.Marshal(articles); err != nil {
			slog.Warn("article_list_cache_encode_failed", "error", err)
		} else if err := deps.Cache.Set(ctx, domainArticle.ListCacheKey, payload, ttl); err != nil {
			slog.Warn("article_list_cache_write_failed", "error", err)
		}
	}

	return ArticleListResult{Articles: articles}, nil
}

// readCachedList returns the cached listing when it is present and decodes as a JSON array.
func readCachedList(ctx context.Context, cache Cache) ([]domainArticle.Summary, bool) {
	raw, found, err := cache.Get(ctx, domainArticle.ListCacheKey)
	if err != nil {
		slog.Warn("article_list_cache_read_failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		slog.Warn("article_list_cache_malformed", "reason", "not_an_array")
		return nil, false
	}
	var articles []domainArticle.Summary
	if err := json.Unmarshal(raw, &articles); err != nil {
		slog.Warn("article_list_cache_malformed", "reason", "decode", "error", err)
		return nil, false
	}
	return articles, true
}
