package web

import (
	"net/http"
	"time"

	"wikimasters/internal/adapters/http/middleware"
	"wikimasters/internal/application/orchestrators"
	"wikimasters/internal/application/projections"
	"wikimasters/internal/domain/article"
)

// articleResponse is the JSON shape returned after a write.
type articleResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Slug      string    `json:"slug"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toArticleResponse(a article.Article) articleResponse {
	return articleResponse{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		Slug:      a.Slug,
		ImageURL:  a.ImageURL,
		AuthorID:  a.AuthorID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (s *Server) writeDeps() orchestrators.ArticleWriteDeps {
	deps := orchestrators.ArticleWriteDeps{
		ArticleStore: s.deps.Articles,
		Now:          s.opts.Now,
	}
	if s.opts.InvalidateListOnWrite && s.deps.Cache != nil {
		deps.ListCache = s.deps.Cache
	}
	return deps
}

// handleListArticles handles GET /api/articles
func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	deps := projections.ArticleListDeps{
		ArticleStore: s.deps.Articles,
		TTL:          s.opts.ArticleListTTL,
	}
	if s.deps.Cache != nil {
		deps.Cache = s.deps.Cache
	}

	result, err := projections.QueryArticleList(r.Context(), deps)
	if err != nil {
		internalError(w, err)
		return
	}

	if result.FromCache {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, result.Articles)
}

// handleGetArticle handles GET /api/articles/{id}
func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, found, err := projections.QueryArticle(r.Context(), id, projections.ArticleDeps{ArticleStore: s.deps.Articles})
	if err != nil {
		internalError(w, err)
		return
	}
	if !found {
		http.Error(w, "article not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type createArticleRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// handleCreateArticle handles POST /api/articles
func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := orchestrators.ExecuteCreateArticle(r.Context(), orchestrators.CreateArticleInput{
		UserID:   middleware.CurrentUserID(r.Context()),
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	}, s.writeDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toArticleResponse(a))
}

type updateArticleRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

// handleUpdateArticle handles PUT /api/articles/{id}
func (s *Server) handleUpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateArticleRequest
	if err := strictDecode(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := orchestrators.ExecuteUpdateArticle(r.Context(), orchestrators.UpdateArticleInput{
		UserID:   middleware.CurrentUserID(r.Context()),
		ID:       id,
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	}, s.writeDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(a))
}

// handleDeleteArticle handles DELETE /api/articles/{id}
func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = orchestrators.ExecuteDeleteArticle(r.Context(), orchestrators.DeleteArticleInput{
		UserID: middleware.CurrentUserID(r.Context()),
		ID:     id,
	}, s.writeDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecordView handles POST /api/articles/{id}/views
func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	id, err := parseArticleID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := orchestrators.ExecuteRecordView(r.Context(), orchestrators.RecordViewInput{ArticleID: id}, orchestrators.RecordViewDeps{
		Counter:    s.deps.Counter,
		Milestones: s.opts.Milestones,
		Dispatcher: s.deps.Dispatcher,
		Now:        s.opts.Now,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
