package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"wikimasters/internal/domain/article"
)

// ArticleStoreForWrite defines the store interface needed by the article write orchestrators.
type ArticleStoreForWrite interface {
	GetByID(ctx context.Context, id int64) (article.Article, bool, error)
	Create(ctx context.Context, a article.Article) (int64, error)
	Update(ctx context.Context, a article.Article) error
	Delete(ctx context.Context, id int64) error
}

// CacheDeleter removes a key from the shared cache.
type CacheDeleter interface {
	Del(ctx context.Context, key string) error
}

// ArticleWriteDeps holds dependencies shared by create, update and delete.
type ArticleWriteDeps struct {
	ArticleStore ArticleStoreForWrite
	ListCache    CacheDeleter // nil leaves the cached listing to expire on its own
	Now          func() time.Time
}

// CreateArticleInput carries input for creating an article.
type CreateArticleInput struct {
	UserID   string // current user; empty when signed out
	Title    string
	Content  string
	ImageURL string
}

// UpdateArticleInput carries a partial update. Nil fields are left untouched.
type UpdateArticleInput struct {
	UserID   string
	ID       int64
	Title    *string
	Content  *string
	ImageURL *string // pointer to "" removes the image
}

// DeleteArticleInput carries input for deleting an article.
type DeleteArticleInput struct {
	UserID string
	ID     int64
}

// ExecuteCreateArticle stores a new published article owned by the current user.
// PRE: UserID is non-empty
// POST: Article persisted with a millisecond slug; returns the stored entity with its ID
func ExecuteCreateArticle(ctx context.Context, input CreateArticleInput, deps ArticleWriteDeps) (article.Article, error) {
	if input.UserID == "" {
		return article.Article{}, article.ErrUnauthorized
	}

	now := deps.Now()
	a := article.Article{
		Title:     input.Title,
		Content:   input.Content,
		Slug:      strconv.FormatInt(now.UnixMilli(), 10),
		ImageURL:  input.ImageURL,
		Published: true,
		AuthorID:  input.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Validate(); err != nil {
		return article.Article{}, err
	}

	id, err := deps.ArticleStore.Create(ctx, a)
	if err != nil {
		return article.Article{}, fmt.Errorf("create article: %w", err)
	}
	a.ID = id

	slog.Info("article_event", "event", "created", "article_id", id, "author_id", input.UserID)
	invalidateArticleList(ctx, deps.ListCache)
	return a, nil
}

// ExecuteUpdateArticle applies a partial update to an article owned by the current user.
// PRE: UserID is non-empty and matches the article's author
// POST: Provided fields replaced, UpdatedAt set to now
func ExecuteUpdateArticle(ctx context.Context, input UpdateArticleInput, deps ArticleWriteDeps) (article.Article, error) {
	a, err := authorizeArticleEdit(ctx, input.UserID, input.ID, deps.ArticleStore)
	if err != nil {
		return article.Article{}, err
	}

	if input.Title != nil {
		a.Title = *input.Title
	}
	if input.Content != nil {
		a.Content = *input.Content
	}
	if input.ImageURL != nil {
		a.ImageURL = *input.ImageURL
	}
	a.UpdatedAt = deps.Now()

	if err := a.Validate(); err != nil {
		return article.Article{}, err
	}
	if err := deps.ArticleStore.Update(ctx, a); err != nil {
		return article.Article{}, fmt.Errorf("update article: %w", err)
	}

	slog.Info("article_event", "event", "updated", "article_id", a.ID, "author_id", input.UserID)
	invalidateArticleList(ctx, deps.ListCache)
	return a, nil
}

// ExecuteDeleteArticle removes an article owned by the current user.
// PRE: UserID is non-empty and matches the article's author
// POST: Article row removed
func ExecuteDeleteArticle(ctx context.Context, input DeleteArticleInput, deps ArticleWriteDeps) error {
	if _, err := authorizeArticleEdit(ctx, input.UserID, input.ID, deps.ArticleStore); err != nil {
		return err
	}
	if err := deps.ArticleStore.Delete(ctx, input.ID); err != nil {
		return fmt.Errorf("delete article: %w", err)
	}

	slog.Info("article_event", "event", "deleted", "article_id", input.ID, "author_id", input.UserID)
	invalidateArticleList(ctx, deps.ListCache)
	return nil
}

// authorizeArticleEdit loads the article and checks the current user wrote it.
// A missing article is reported as forbidden so ids cannot be enumerated.
func authorizeArticleEdit(ctx context.Context, userID string, id int64, store ArticleStoreForWrite) (article.Article, error) {
	if userID == "" {
		return article.Article{}, article.ErrUnauthorized
	}
	if err := article.ValidateID(id); err != nil {
		return article.Article{}, err
	}
	a, found, err := store.GetByID(ctx, id)
	if err != nil {
		return article.Article{}, fmt.Errorf("load article %d: %w", id, err)
	}
	if !found || a.AuthorID != userID {
		slog.Info("article_event", "event", "edit_forbidden", "article_id", id, "user_id", userID)
		return article.Article{}, article.ErrForbidden
	}
	return a, nil
}

func invalidateArticleList(ctx context.Context, cache CacheDeleter) {
	if cache == nil {
		return
	}
	if err := cache.Del(ctx, article.ListCacheKey); err != nil {
		slog.Warn("article_list_invalidate_failed", "error", err)
	}
}
