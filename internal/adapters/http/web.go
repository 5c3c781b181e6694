package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"wikimasters/internal/adapters/http/middleware"
	articleStore "wikimasters/internal/adapters/storage/article"
	userStore "wikimasters/internal/adapters/storage/user"
	"wikimasters/internal/application/orchestrators"
	"wikimasters/internal/application/projections"
	"wikimasters/internal/domain/pageview"
)

// ListCache is the shared key-value cache as seen by the article handlers.
type ListCache interface {
	projections.Cache
	orchestrators.CacheDeleter
}

// Deps holds the stores and adapters the handlers run against.
type Deps struct {
	Articles   articleStore.Store
	Users      userStore.Store
	Counter    orchestrators.ViewCounter
	Cache      ListCache                         // nil disables the listing cache
	Dispatcher orchestrators.MilestoneDispatcher // nil disables celebrations
	Blobs      orchestrators.BlobPutter
	BlobDir    string                   // served under /blobs/ when set
	Sessions   *middleware.SessionStore // nil keeps sessions in Cache
	Health     func(ctx context.Context) error
}

// Options tunes behaviour that differs between environments.
type Options struct {
	Milestones            pageview.MilestoneSet
	ArticleListTTL        time.Duration
	InvalidateListOnWrite bool
	CSRFKey               []byte
	SecureCookies         bool
	TrustedOrigins        []string
	SlowRequest           time.Duration
	RateLimitPerSecond    int // per client IP; non-positive uses DefaultRateLimitPerSecond
	TracerProvider        trace.TracerProvider
	Now                   func() time.Time
	GenerateID            func() string
}

// DefaultRateLimitPerSecond is the per-IP request budget.
const DefaultRateLimitPerSecond = 10

// Server owns the handler tree and the background resources behind it.
type Server struct {
	deps    Deps
	opts    Options
	limiter *middleware.RateLimiter
	handler http.Handler
}

// NewServer wires HTTP handlers for the app.
// PRE: Articles, Users, Counter and Blobs are set; Sessions or Cache is set; CSRFKey is 32 bytes
// POST: Handler() is ready to serve; Close must be called to stop the rate limiter
func NewServer(deps Deps, opts Options) *Server {
	if deps.Sessions == nil {
		deps.Sessions = middleware.NewSessionStore(deps.Cache)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerateID == nil {
		opts.GenerateID = generateID
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = DefaultRateLimitPerSecond
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		limiter: middleware.NewRateLimiter(opts.RateLimitPerSecond, time.Second),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> mux
	s.handler = middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(middleware.CSRFOptions{
			AuthKey:        opts.CSRFKey,
			Secure:         opts.SecureCookies,
			TrustedOrigins: opts.TrustedOrigins,
		}),
		middleware.Auth(deps.Sessions),
		middleware.RateLimit(s.limiter),
		middleware.Timing(opts.SlowRequest, opts.TracerProvider),
	)
	return s
}

// Handler returns the root handler including the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases background resources. In-flight requests are not affected.
func (s *Server) Close() {
	s.limiter.Close()
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/articles", s.handleListArticles)
	mux.HandleFunc("POST /api/articles", s.handleCreateArticle)
	mux.HandleFunc("GET /api/articles/{id}", s.handleGetArticle)
	mux.HandleFunc("PUT /api/articles/{id}", s.handleUpdateArticle)
	mux.HandleFunc("DELETE /api/articles/{id}", s.handleDeleteArticle)
	mux.HandleFunc("POST /api/articles/{id}/views", s.handleRecordView)

	mux.Handle("POST /api/uploads", middleware.RequireAuth(http.HandlerFunc(s.handleUpload)))

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	syncUser := middleware.RequireAuth(http.HandlerFunc(s.handleAuthSync))
	mux.Handle("GET /api/auth/sync", syncUser)
	mux.Handle("POST /api/auth/sync", syncUser)
	mux.HandleFunc("GET /api/csrf", s.handleCSRFToken)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.deps.BlobDir != "" {
		mux.Handle("GET /blobs/", http.StripPrefix("/blobs/", http.FileServer(blobFileSystem{root: http.Dir(s.deps.BlobDir)})))
	}
}

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}
