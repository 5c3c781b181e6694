package orchestrators

import (
	"context"
	"io"
	"log/slog"

	"wikimasters/internal/adapters/blob"
	"wikimasters/internal/domain/article"
	"wikimasters/internal/domain/upload"
)

// BlobPutter defines the blob storage operation needed by UploadAttachment.
type BlobPutter interface {
	Put(ctx context.Context, name string, content io.Reader, opts blob.PutOptions) (blob.Object, error)
}

// UploadAttachmentInput carries the first file of a multipart upload.
type UploadAttachmentInput struct {
	UserID  string
	File    upload.File
	Content io.Reader
}

// UploadAttachmentDeps holds dependencies for UploadAttachment.
type UploadAttachmentDeps struct {
	Blobs BlobPutter
}

// ExecuteUploadAttachment validates an image and stores it publicly under a randomised name.
// PRE: UserID is non-empty
// POST: Returns the public URL; storage failures surface as upload.ErrUploadFailed
func ExecuteUploadAttachment(ctx context.Context, input UploadAttachmentInput, deps UploadAttachmentDeps) (upload.Result, error) {
	if input.UserID == "" {
		return upload.Result{}, article.ErrUnauthorized
	}
	if input.Content == nil {
		return upload.Result{}, upload.ErrNoFile
	}
	if err := input.File.Validate(); err != nil {
		return upload.Result{}, err
	}

	obj, err := deps.Blobs.Put(ctx, input.File.Name, input.Content, blob.PutOptions{
		Access:          blob.AccessPublic,
		AddRandomSuffix: true,
		ContentType:     input.File.ContentType,
	})
	if err != nil {
		slog.Error("upload_failed", "user_id", input.UserID, "filename", input.File.Name, "error", err)
		return upload.Result{}, upload.ErrUploadFailed
	}

	slog.Info("upload_stored", "user_id", input.UserID, "pathname", obj.Pathname, "size", input.File.Size)
	return upload.Result{
		URL:      obj.URL,
		Size:     input.File.Size,
		Type:     input.File.ContentType,
		Filename: obj.Pathname,
	}, nil
}
