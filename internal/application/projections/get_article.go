package projections

import (
	"context"
	"fmt"

	domainArticle "wikimasters/internal/domain/article"
)

// ArticleDeps holds dependencies for Article.
type ArticleDeps struct {
	ArticleStore ArticleStore
}

// QueryArticle returns a single article straight from the store.
// PRE: id > 0
// POST: found is false with a nil error when no article has this id
func QueryArticle(ctx context.Context, id int64, deps ArticleDeps) (domainArticle.Detail, bool, error) {
	if err := domainArticle.ValidateID(id); err != nil {
		return domainArticle.Detail{}, false, err
	}
	d, found, err := deps.ArticleStore.GetDetail(ctx, id)
	if err != nil {
		return domainArticle.Detail{}, false, fmt.Errorf("get article %d: %w", id, err)
	}
	return d, found, nil
}
