package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"

	"wikimasters/internal/adapters/http/middleware"
	"wikimasters/internal/application/orchestrators"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// startSession issues a session cookie for a verified user.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, id, email, name string) bool {
	token, err := s.deps.Sessions.Create(r.Context(), id, email, name)
	if err != nil {
		internalError(w, err)
		return false
	}
	middleware.SetSessionCookie(w, token, s.opts.SecureCookies)
	return true
}

// handleSignup handles POST /api/signup
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := orchestrators.ExecuteCreateUser(r.Context(), orchestrators.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}, orchestrators.CreateUserDeps{
		UserStore:  s.deps.Users,
		GenerateID: s.opts.GenerateID,
		Now:        s.opts.Now,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	u, err := s.deps.Users.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, err)
		return
	}
	if !s.startSession(w, r, u.ID, u.Email, u.Name) {
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, Name: u.Name})
}

// handleLogin handles POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, orchestrators.LoginDeps{
		UserStore: s.deps.Users,
		Now:       s.opts.Now,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !s.startSession(w, r, result.UserID, result.Email, result.Name) {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: result.UserID, Email: result.Email, Name: result.Name})
}

// handleLogout handles POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := s.deps.Sessions.Delete(r.Context(), token); err != nil {
			slog.Warn("session_delete_failed", "error", err)
		}
	}
	middleware.ClearSessionCookie(w, s.opts.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthSync handles GET and POST /api/auth/sync. Requires a session.
// It makes sure the signed-in user has a users row and returns it.
func (s *Server) handleAuthSync(w http.ResponseWriter, r *http.Request) {
	session, _ := middleware.CurrentUser(r.Context())

	u, err := orchestrators.ExecuteSyncUser(r.Context(), orchestrators.SyncUserInput{
		UserID: session.UserID,
		Email:  session.Email,
		Name:   session.Name,
	}, orchestrators.SyncUserDeps{
		UserStore: s.deps.Users,
		Now:       s.opts.Now,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email, Name: u.Name})
}

// handleCSRFToken handles GET /api/csrf.
// Clients send the token back in X-CSRF-Token on non-JSON writes such as uploads.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := csrf.Token(r)
	if token == "" {
		slog.Warn("csrf_token_unavailable")
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
