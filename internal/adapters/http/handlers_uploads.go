package web

import (
	"errors"
	"io/fs"
	"net/http"

	"wikimasters/internal/adapters/http/middleware"
	"wikimasters/internal/application/orchestrators"
	"wikimasters/internal/domain/upload"
)

// uploadFormField is the multipart field holding attachments. Only the first file is stored.
const uploadFormField = "files"

// multipartOverhead leaves room for boundaries and headers around a maximum-size file.
const multipartOverhead = 1 << 20

// handleUpload handles POST /api/uploads. Requires a session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.CurrentUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(upload.MaxFileSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, upload.ErrFileTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		writeError(w, upload.ErrNoFile)
		return
	}
	header := headers[0]

	f, err := header.Open()
	if err != nil {
		internalError(w, err)
		return
	}
	defer f.Close()

	result, err := orchestrators.ExecuteUploadAttachment(r.Context(), orchestrators.UploadAttachmentInput{
		UserID: userID,
		File: upload.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
		},
		Content: f,
	}, orchestrators.UploadAttachmentDeps{Blobs: s.deps.Blobs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// blobFileSystem serves stored attachments by exact name. Directories report
// not-exist so the file server answers 404 instead of listing uploads.
type blobFileSystem struct {
	root http.Dir
}

// Open implements http.FileSystem.
func (b blobFileSystem) Open(name string) (http.File, error) {
	f, err := b.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
