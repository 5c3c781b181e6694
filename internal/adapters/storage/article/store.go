package article

import (
	"context"

	domain "wikimasters/internal/domain/article"
)

// Store persists Article state and serves the read projections joined with users.
type Store interface {
	// GetByID retrieves an Article by its ID.
	// POST: found is false (and err nil) when no row matches
	GetByID(ctx context.Context, id int64) (a domain.Article, found bool, err error)

	// Create inserts a new Article and returns its generated ID.
	// PRE: entity has been validated; ID is zero
	Create(ctx context.Context, a domain.Article) (int64, error)

	// Update overwrites the mutable columns of an existing Article.
	// PRE: entity has been validated; ID is set
	Update(ctx context.Context, a domain.Article) error

	// Delete removes an Article.
	Delete(ctx context.Context, id int64) error

	// ListSummaries returns every article left-joined with its author, newest first.
	ListSummaries(ctx context.Context) ([]domain.Summary, error)

	// GetDetail returns the single-article projection.
	// POST: found is false (and err nil) when no row matches
	GetDetail(ctx context.Context, id int64) (d domain.Detail, found bool, err error)

	// GetAuthorContact returns the title and author email/name for an article.
	// POST: found is false (and err nil) when no article matches
	GetAuthorContact(ctx context.Context, id int64) (c domain.AuthorContact, found bool, err error)
}
