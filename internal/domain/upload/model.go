package upload

import (
	"errors"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxFileSize is the largest attachment accepted (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the image types accepted for article attachments.
var AllowedContentTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Domain errors
var (
	ErrNoFile          = errors.New("no file provided")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUploadFailed    = errors.New("upload failed")
)

// File describes an uploaded attachment before it is handed to blob storage.
type File struct {
	Name        string
	ContentType string
	Size        int64
}

// Validate checks the attachment against the type and size limits.
// PRE: File struct is populated from the multipart header
// POST: Returns nil if acceptable, a domain error otherwise
func (f *File) Validate() error {
	if f.Name == "" {
		return ErrNoFile
	}
	err := validation.ValidateStruct(f,
		validation.Field(&f.ContentType, validation.Required, validation.By(allowedType)),
	)
	if err != nil {
		return ErrInvalidFileType
	}
	if f.Size > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

func allowedType(value any) error {
	ct, _ := value.(string)
	if !slices.Contains(AllowedContentTypes, ct) {
		return ErrInvalidFileType
	}
	return nil
}

// Result is what callers receive after a successful upload.
type Result struct {
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
}
