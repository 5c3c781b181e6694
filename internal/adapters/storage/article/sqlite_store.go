package article

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wikimasters/internal/adapters/storage"
	domain "wikimasters/internal/domain/article"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new article store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves an Article by its ID.
// PRE: id > 0
// POST: Returns the entity, or found=false if no row matches
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.Article, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, slug, image_url, published, author_id, created_at, updated_at
		 FROM articles WHERE id = ?`, id)

	var a domain.Article
	var imageURL sql.NullString
	var published int
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Slug, &imageURL, &published, &a.AuthorID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("get article %d: %w", id, err)
	}
	a.ImageURL = imageURL.String
	a.Published = published != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, true, nil
}

// Create inserts a new Article.
// PRE: entity has been validated
// POST: Row inserted; returns the autoincrement ID
func (s *SQLiteStore) Create(ctx context.Context, a domain.Article) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (title, content, slug, image_url, published, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.Content, a.Slug, nullString(a.ImageURL), boolToInt(a.Published), a.AuthorID,
		a.CreatedAt.UTC().Format(storage.DateLayout), a.UpdatedAt.UTC().Format(storage.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return res.LastInsertId()
}

// Update overwrites the mutable columns of an Article.
// PRE: entity has been validated; ID refers to an existing row
// POST: title, content, image_url, published and updated_at are replaced
func (s *SQLiteStore) Update(ctx context.Context, a domain.Article) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET title = ?, content = ?, image_url = ?, published = ?, updated_at = ?
		 WHERE id = ?`,
		a.Title, a.Content, nullString(a.ImageURL), boolToInt(a.Published),
		a.UpdatedAt.UTC().Format(storage.DateLayout), a.ID)
	if err != nil {
		return fmt.Errorf("update article %d: %w", a.ID, err)
	}
	return nil
}

// Delete removes an Article from the database.
// PRE: id > 0
// POST: Row with given id is removed (no-op if absent)
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	return nil
}

// ListSummaries returns the listing projection for every article.
// PRE: none
// POST: Returns summaries ordered newest first; authors missing from users yield an empty Author
func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.created_at, a.content, u.name, a.image_url
		 FROM articles a LEFT JOIN users u ON a.author_id = u.id
		 ORDER BY a.created_at DESC, a.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	summaries := []domain.Summary{}
	for rows.Next() {
		var sum domain.Summary
		var createdAt string
		var author, imageURL sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Title, &createdAt, &sum.Content, &author, &imageURL); err != nil {
			return nil, fmt.Errorf("scan article summary: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		sum.Author = author.String
		sum.ImageURL = imageURL.String
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// GetDetail returns the single-article projection.
// PRE: id > 0
// POST: Returns the detail, or found=false if no row matches
func (s *SQLiteStore) GetDetail(ctx context.Context, id int64) (domain.Detail, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.title, a.created_at, a.updated_at, a.content, u.name, a.image_url, a.author_id
		 FROM articles a LEFT JOIN users u ON a.author_id = u.id
		 WHERE a.id = ?`, id)

	var d domain.Detail
	var createdAt, updatedAt string
	var author, imageURL sql.NullString
	err := row.Scan(&d.ID, &d.Title, &createdAt, &updatedAt, &d.Content, &author, &imageURL, &d.AuthorID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Detail{}, false, nil
	}
	if err != nil {
		return domain.Detail{}, false, fmt.Errorf("get article detail %d: %w", id, err)
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	d.Author = author.String
	d.ImageURL = imageURL.String
	return d, true, nil
}

// GetAuthorContact returns the article title with the author's email and name.
// PRE: id > 0
// POST: Returns found=false if the article does not exist; Email is empty if the author row is missing
func (s *SQLiteStore) GetAuthorContact(ctx context.Context, id int64) (domain.AuthorContact, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.title, u.email, u.name
		 FROM articles a LEFT JOIN users u ON a.author_id = u.id
		 WHERE a.id = ?`, id)

	var c domain.AuthorContact
	var email, name sql.NullString
	err := row.Scan(&c.ArticleID, &c.Title, &email, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorContact{}, false, nil
	}
	if err != nil {
		return domain.AuthorContact{}, false, fmt.Errorf("get author contact %d: %w", id, err)
	}
	c.Email = email.String
	c.Name = name.String
	return c, true, nil
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(storage.DateLayout, value)
	return t
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
