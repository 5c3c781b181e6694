package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"wikimasters/internal/adapters/blob"
	"wikimasters/internal/adapters/http/middleware"
	"wikimasters/internal/adapters/storage"
	articleStore "wikimasters/internal/adapters/storage/article"
	"wikimasters/internal/adapters/storage/kv"
	userStore "wikimasters/internal/adapters/storage/user"
	"wikimasters/internal/domain/article"
	"wikimasters/internal/domain/pageview"
	"wikimasters/internal/domain/user"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

const testPassword = "correct horse battery"

type recordingDispatcher struct {
	mu     sync.Mutex
	events []pageview.MilestoneEvent
}

// Dispatch implements orchestrators.MilestoneDispatcher for testing.
func (d *recordingDispatcher) Dispatch(ctx context.Context, e pageview.MilestoneEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

func (d *recordingDispatcher) Events() []pageview.MilestoneEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pageview.MilestoneEvent(nil), d.events...)
}

type testEnv struct {
	srv        *Server
	handler    http.Handler
	users      *userStore.SQLiteStore
	cache      *kv.SQLiteStore
	dispatcher *recordingDispatcher
	health     error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("init db: %v", err)
	}

	blobDir := t.TempDir()
	blobs, err := blob.NewFilesystemStore(blobDir, "/blobs")
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	env := &testEnv{
		users:      userStore.NewSQLiteStore(db),
		cache:      kv.NewSQLiteStore(db, nil),
		dispatcher: &recordingDispatcher{},
	}
	env.srv = NewServer(Deps{
		Articles:   articleStore.NewSQLiteStore(db),
		Users:      env.users,
		Counter:    env.cache,
		Cache:      env.cache,
		Dispatcher: env.dispatcher,
		Blobs:      blobs,
		BlobDir:    blobDir,
		Health:     func(context.Context) error { return env.health },
	}, Options{
		Milestones:            pageview.DefaultMilestones,
		ArticleListTTL:        time.Minute,
		InvalidateListOnWrite: true,
		CSRFKey:               []byte("0123456789abcdef0123456789abcdef"),
		RateLimitPerSecond:    10000,
		Now:                   fixedNow,
	})
	t.Cleanup(env.srv.Close)
	env.handler = env.srv.Handler()
	return env
}

// seedUser stores a user with testPassword and returns it.
func (e *testEnv) seedUser(t *testing.T, id, email, name string) user.User {
	t.Helper()
	u := user.User{ID: id, Email: email, Name: name, CreatedAt: fixedTime}
	if err := u.SetPassword(testPassword); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := e.users.Save(context.Background(), u); err != nil {
		t.Fatalf("Save user: %v", err)
	}
	return u
}

// signIn creates a session for the user and returns its cookie.
func (e *testEnv) signIn(t *testing.T, u user.User) *http.Cookie {
	t.Helper()
	token, err := e.srv.deps.Sessions.Create(context.Background(), u.ID, u.Email, u.Name)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	rr := httptest.NewRecorder()
	middleware.SetSessionCookie(rr, token, false)
	return rr.Result().Cookies()[0]
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) createArticle(t *testing.T, cookie *http.Cookie, title string) int64 {
	t.Helper()
	body := fmt.Sprintf(`{"title":%q,"content":"# %s"}`, title, title)
	rr := e.do(jsonRequest("POST", "/api/articles", body), cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create article status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got articleResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got.ID
}

func decodeSummaries(t *testing.T, rr *httptest.ResponseRecorder) []article.Summary {
	t.Helper()
	var list []article.Summary
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return list
}

// TestListArticles_ReadThroughCache tests miss, hit and malformed fallback over HTTP.
func TestListArticles_ReadThroughCache(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	env.createArticle(t, env.signIn(t, ada), "Go Channels")

	rr := env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first read X-Cache = %q, want MISS", rr.Header().Get("X-Cache"))
	}
	list := decodeSummaries(t, rr)
	if len(list) != 1 || list[0].Title != "Go Channels" || list[0].Author != "Ada" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rr = env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second read X-Cache = %q, want HIT", rr.Header().Get("X-Cache"))
	}

	if err := env.cache.Set(context.Background(), article.ListCacheKey, []byte(`{"oops":true}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	rr = env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Errorf("malformed cache X-Cache = %q, want MISS", rr.Header().Get("X-Cache"))
	}
	if list := decodeSummaries(t, rr); len(list) != 1 {
		t.Errorf("fallback list len = %d, want 1", len(list))
	}
}

func TestListArticles_Empty(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestCreateArticle_Errors(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	cookie := env.signIn(t, ada)

	tests := []struct {
		name       string
		body       string
		cookie     *http.Cookie
		wantStatus int
	}{
		{"signed out", `{"title":"T","content":"C"}`, nil, http.StatusUnauthorized},
		{"blank title", `{"title":"","content":"C"}`, cookie, http.StatusBadRequest},
		{"blank content", `{"title":"T","content":""}`, cookie, http.StatusBadRequest},
		{"unknown field", `{"title":"T","content":"C","extra":1}`, cookie, http.StatusBadRequest},
		{"not json", `title=T`, cookie, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			rr := env.do(jsonRequest("POST", "/api/articles", tt.body), cookies...)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

// TestUpdateArticle_AuthorOnly tests ownership checks and list invalidation on update.
func TestUpdateArticle_AuthorOnly(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	bob := env.seedUser(t, "u-2", "bob@example.com", "Bob")
	id := env.createArticle(t, env.signIn(t, ada), "Draft")
	path := fmt.Sprintf("/api/articles/%d", id)

	env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr := env.do(httptest.NewRequest("GET", "/api/articles", nil)); rr.Header().Get("X-Cache") != "HIT" {
		t.Fatal("expected warm cache before update")
	}

	rr := env.do(jsonRequest("PUT", path, `{"title":"Hijacked"}`), env.signIn(t, bob))
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-author status = %d, want 403", rr.Code)
	}

	rr = env.do(jsonRequest("PUT", path, `{"title":"Final"}`), env.signIn(t, ada))
	if rr.Code != http.StatusOK {
		t.Fatalf("author status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got articleResponse
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Title != "Final" || got.Content != "# Draft" {
		t.Errorf("partial update not applied: %+v", got)
	}

	rr = env.do(httptest.NewRequest("GET", "/api/articles", nil))
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Errorf("X-Cache after update = %q, want MISS", rr.Header().Get("X-Cache"))
	}
	if list := decodeSummaries(t, rr); list[0].Title != "Final" {
		t.Errorf("listing title = %q, want Final", list[0].Title)
	}
}

func TestUpdateArticle_MissingIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")

	rr := env.do(jsonRequest("PUT", "/api/articles/999", `{"title":"X"}`), env.signIn(t, ada))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestDeleteArticle(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	cookie := env.signIn(t, ada)
	id := env.createArticle(t, cookie, "Doomed")
	path := fmt.Sprintf("/api/articles/%d", id)

	if rr := env.do(jsonRequest("DELETE", path, "")); rr.Code != http.StatusUnauthorized {
		t.Errorf("signed-out delete status = %d, want 401", rr.Code)
	}

	rr := env.do(jsonRequest("DELETE", path, ""), cookie)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = env.do(httptest.NewRequest("GET", path, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestGetArticle(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	id := env.createArticle(t, env.signIn(t, ada), "Go")

	rr := env.do(httptest.NewRequest("GET", fmt.Sprintf("/api/articles/%d", id), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var d article.Detail
	if err := json.NewDecoder(rr.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.ID != id || d.Author != "Ada" || d.AuthorID != "u-1" {
		t.Errorf("unexpected detail: %+v", d)
	}
}

func TestGetArticle_BadIDs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/articles/abc", http.StatusBadRequest},
		{"/api/articles/0", http.StatusBadRequest},
		{"/api/articles/-4", http.StatusBadRequest},
		{"/api/articles/12345", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rr := env.do(httptest.NewRequest("GET", tt.path, nil)); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

// TestRecordView_MilestoneDispatch tests counting over HTTP and the fifth view firing a celebration.
func TestRecordView_MilestoneDispatch(t *testing.T) {
	env := newTestEnv(t)

	var last struct {
		Count     int64 `json:"count"`
		Milestone bool  `json:"milestone"`
	}
	for i := 1; i <= 6; i++ {
		rr := env.do(jsonRequest("POST", "/api/articles/7/views", ""))
		if rr.Code != http.StatusOK {
			t.Fatalf("view %d status = %d", i, rr.Code)
		}
		if err := json.NewDecoder(rr.Body).Decode(&last); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if last.Count != int64(i) {
			t.Errorf("view %d count = %d", i, last.Count)
		}
		if last.Milestone != (i == 5) {
			t.Errorf("view %d milestone = %v", i, last.Milestone)
		}
	}

	events := env.dispatcher.Events()
	if len(events) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(events))
	}
	if events[0].ArticleID != 7 || events[0].Views != 5 {
		t.Errorf("unexpected event: %+v", events[0])
	}

	if rr := env.do(jsonRequest("POST", "/api/articles/nope/views", "")); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rr.Code)
	}
}

// fetchCSRF returns a token and the cookie it is bound to.
func (e *testEnv) fetchCSRF(t *testing.T) (string, []*http.Cookie) {
	t.Helper()
	rr := e.do(httptest.NewRequest("GET", "/api/csrf", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("csrf status = %d", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["token"] == "" {
		t.Fatal("empty csrf token")
	}
	return body["token"], rr.Result().Cookies()
}

func multipartUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	part.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) uploadRequest(t *testing.T, body io.Reader, contentType string) *http.Request {
	t.Helper()
	token, csrfCookies := e.fetchCSRF(t)
	req := httptest.NewRequest("POST", "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-CSRF-Token", token)
	req.Header.Set("Origin", "http://example.com")
	for _, c := range csrfCookies {
		req.AddCookie(c)
	}
	return req
}

// TestUpload_StoresAndServes tests the multipart upload path and serving the stored blob.
func TestUpload_StoresAndServes(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")
	png := []byte("\x89PNG fake image bytes")

	body, ct := multipartUpload(t, "cat.png", "image/png", png)
	rr := env.do(env.uploadRequest(t, body, ct), env.signIn(t, ada))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got struct {
		URL      string `json:"url"`
		Size     int64  `json:"size"`
		Type     string `json:"type"`
		Filename string `json:"filename"`
	}
	json.NewDecoder(rr.Body).Decode(&got)
	if !strings.HasPrefix(got.URL, "/blobs/cat-") || got.Type != "image/png" || got.Size != int64(len(png)) {
		t.Fatalf("unexpected result: %+v", got)
	}

	rr = env.do(httptest.NewRequest("GET", got.URL, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("blob GET status = %d", rr.Code)
	}
	if !bytes.Equal(rr.Body.Bytes(), png) {
		t.Error("served blob differs from upload")
	}
}

// TestBlobs_NoDirectoryListing tests that the attachment directory cannot be enumerated.
func TestBlobs_NoDirectoryListing(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")

	body, ct := multipartUpload(t, "cat.png", "image/png", []byte("\x89PNG fake image bytes"))
	if rr := env.do(env.uploadRequest(t, body, ct), env.signIn(t, ada)); rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rr.Code, rr.Body.String())
	}

	for _, path := range []string{"/blobs/", "/blobs/missing.png"} {
		rr := env.do(httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rr.Code)
		}
		if strings.Contains(rr.Body.String(), "cat-") {
			t.Errorf("GET %s leaked an upload name: %s", path, rr.Body.String())
		}
	}
}

func TestUpload_Errors(t *testing.T) {
	env := newTestEnv(t)
	ada := env.seedUser(t, "u-1", "ada@example.com", "Ada")

	t.Run("signed out", func(t *testing.T) {
		body, ct := multipartUpload(t, "cat.png", "image/png", []byte("x"))
		if rr := env.do(env.uploadRequest(t, body, ct)); rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})
	t.Run("wrong type", func(t *testing.T) {
		body, ct := multipartUpload(t, "notes.txt", "text/plain", []byte("x"))
		if rr := env.do(env.uploadRequest(t, body, ct), env.signIn(t, ada)); rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
	t.Run("no file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("title", "x")
		mw.Close()
		if rr := env.do(env.uploadRequest(t, &buf, mw.FormDataContentType()), env.signIn(t, ada)); rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
	t.Run("missing csrf token", func(t *testing.T) {
		body, ct := multipartUpload(t, "cat.png", "image/png", []byte("x"))
		req := httptest.NewRequest("POST", "/api/uploads", body)
		req.Header.Set("Content-Type", ct)
		if rr := env.do(req, env.signIn(t, ada)); rr.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rr.Code)
		}
	})
}

// TestLoginSyncLogout tests the session lifecycle end to end.
func TestLoginSyncLogout(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-1", "ada@example.com", "Ada")

	rr := env.do(jsonRequest("POST", "/api/login", `{"email":"ada@example.com","password":"wrong password!"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rr.Code)
	}

	rr = env.do(jsonRequest("POST", "/api/login", `{"email":"ADA@example.com","password":"`+testPassword+`"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "wikimasters_session" {
			session = c
		}
	}
	if session == nil {
		t.Fatal("login did not set a session cookie")
	}

	rr = env.do(httptest.NewRequest("GET", "/api/auth/sync", nil), session)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync status = %d", rr.Code)
	}
	var u userResponse
	json.NewDecoder(rr.Body).Decode(&u)
	if u.ID != "u-1" || u.Email != "ada@example.com" || u.Name != "Ada" {
		t.Errorf("sync user = %+v", u)
	}

	if rr := env.do(jsonRequest("POST", "/api/logout", ""), session); rr.Code != http.StatusNoContent {
		t.Errorf("logout status = %d", rr.Code)
	}
	if rr := env.do(httptest.NewRequest("GET", "/api/auth/sync", nil), session); rr.Code != http.StatusUnauthorized {
		t.Errorf("sync after logout status = %d, want 401", rr.Code)
	}
}

// TestAuthSync_CreatesMissingRow tests that a session without a users row gets one.
func TestAuthSync_CreatesMissingRow(t *testing.T) {
	env := newTestEnv(t)
	ghost := user.User{ID: "ext-9", Email: "grace@example.com", Name: "Grace"}

	rr := env.do(jsonRequest("POST", "/api/auth/sync", ""), env.signIn(t, ghost))
	if rr.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", rr.Code, rr.Body.String())
	}
	stored, err := env.users.GetByID(context.Background(), "ext-9")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Email != "grace@example.com" || stored.Name != "Grace" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)
	body := `{"email":"new@example.com","password":"` + testPassword + `","name":"Newbie"}`

	rr := env.do(jsonRequest("POST", "/api/signup", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(rr.Result().Cookies()) == 0 {
		t.Error("signup should start a session")
	}

	if rr := env.do(jsonRequest("POST", "/api/signup", body)); rr.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", rr.Code)
	}
	short := `{"email":"other@example.com","password":"short"}`
	if rr := env.do(jsonRequest("POST", "/api/signup", short)); rr.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthy: status = %d body = %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}

	env.health = errors.New("db gone")
	if rr := env.do(httptest.NewRequest("GET", "/healthz", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rr.Code)
	}
}
