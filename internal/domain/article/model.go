package article

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Max length constants for user-editable fields.
const (
	MaxTitleLength    = 200
	MaxImageURLLength = 2048
)

// ListCacheKey is the shared-store key holding the cached article listing.
const ListCacheKey = "articles:all"

// Domain errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidID    = errors.New("article id must be a positive integer")
)

// Article is a markdown wiki page owned by its author.
type Article struct {
	ID        int64
	Title     string
	Content   string // Markdown content
	Slug      string
	ImageURL  string // empty when no image is attached
	Published bool
	AuthorID  string // users.id of the creator
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the listing projection of an Article joined with its author.
// It is also the shape stored in the article list cache.
type Summary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Content   string    `json:"content"`
	Author    string    `json:"author"` // author display name, empty when the user row is missing
	ImageURL  string    `json:"imageUrl,omitempty"`
}

// Detail is the single-article projection; it extends Summary with update and ownership data.
type Detail struct {
	Summary
	AuthorID  string    `json:"authorId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthorContact is what the celebration notifier needs to reach an article's author.
type AuthorContact struct {
	ArticleID int64
	Title     string
	Email     string // empty when the author row is missing
	Name      string
}

// Validate checks if the Article has valid data.
// PRE: Article struct is populated
// POST: Returns nil if valid, validation.Errors otherwise
func (a *Article) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Title, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&a.Content, validation.Required),
		validation.Field(&a.ImageURL, validation.Length(0, MaxImageURLLength)),
		validation.Field(&a.AuthorID, validation.Required),
	)
}

// ValidateID rejects non-positive article identifiers.
func ValidateID(id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	return nil
}
