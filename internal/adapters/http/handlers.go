package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"wikimasters/internal/application/orchestrators"
	"wikimasters/internal/domain/article"
	"wikimasters/internal/domain/upload"
	"wikimasters/internal/domain/user"
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

// parseArticleID reads the {id} path segment.
func parseArticleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, article.ErrInvalidID
	}
	return id, nil
}

// writeError maps domain errors to status codes; anything unrecognised is a 500.
func writeError(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		http.Error(w, verrs.Error(), http.StatusBadRequest)
	case errors.Is(err, article.ErrInvalidID),
		errors.Is(err, upload.ErrNoFile),
		errors.Is(err, upload.ErrInvalidFileType),
		errors.Is(err, user.ErrEmptyEmail),
		errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrEmailTooLong),
		errors.Is(err, user.ErrNameTooLong),
		errors.Is(err, user.ErrEmptyPassword),
		errors.Is(err, user.ErrPasswordTooShort):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, upload.ErrFileTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, article.ErrUnauthorized),
		errors.Is(err, orchestrators.ErrNotSignedIn),
		errors.Is(err, orchestrators.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, article.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, orchestrators.ErrEmailAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, orchestrators.ErrUserLocked):
		http.Error(w, err.Error(), http.StatusLocked)
	case errors.Is(err, upload.ErrUploadFailed):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		internalError(w, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			slog.Warn("health_check_failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
