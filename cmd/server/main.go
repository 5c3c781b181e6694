package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wikimasters/internal/adapters/blob"
	emailPkg "wikimasters/internal/adapters/email"
	web "wikimasters/internal/adapters/http"
	"wikimasters/internal/adapters/http/middleware"
	"wikimasters/internal/adapters/rediskv"
	"wikimasters/internal/adapters/storage"
	articleStorePkg "wikimasters/internal/adapters/storage/article"
	kvStorePkg "wikimasters/internal/adapters/storage/kv"
	milestoneStorePkg "wikimasters/internal/adapters/storage/milestone"
	userStorePkg "wikimasters/internal/adapters/storage/user"
	"wikimasters/internal/application/orchestrators"
	"wikimasters/internal/config"
	"wikimasters/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.SetDefault(newLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.TracingOptions{
		Enabled:  cfg.TracingEnabled,
		Endpoint: cfg.TracingEndpoint,
		Version:  version,
	})
	if err != nil {
		log.Fatalf("failed to initialise tracing: %v", err)
	}
	defer telemetry.Shutdown(shutdownTracing, 5*time.Second)

	// WAL mode, foreign keys and busy timeout on every pooled connection
	dsn := cfg.DBPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialise schema: %v", err)
	}
	timedDB := storage.NewTimedDB(db, cfg.SlowQuery, nil)

	articles := articleStorePkg.NewSQLiteStore(timedDB)
	users := userStorePkg.NewSQLiteStore(timedDB)
	milestones := milestoneStorePkg.NewSQLiteStore(timedDB)

	// Shared counter and cache: Redis when configured, SQLite tables otherwise
	var shared kvStorePkg.Store
	var redisStore *rediskv.Store
	if cfg.RedisURL != "" {
		redisStore, err = rediskv.Open(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		shared = redisStore
		slog.Info("kv_store_configured", "backend", "redis")
	} else {
		shared = kvStorePkg.NewSQLiteStore(timedDB, nil)
		slog.Info("kv_store_configured", "backend", "sqlite")
	}

	seedDeps := orchestrators.CreateUserDeps{UserStore: users, GenerateID: uuid.NewString, Now: time.Now}
	if err := orchestrators.ExecuteSeedAdmin(ctx, seedDeps, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}

	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.ResendFrom)
		slog.Info("email_sender_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_sender_configured", "provider", "noop", "warning", "WIKI_RESEND_KEY is not set; celebration emails are disabled")
		} else {
			slog.Info("email_sender_configured", "provider", "noop")
		}
	}

	dispatcher := orchestrators.NewCelebrationDispatcher(orchestrators.SendCelebrationDeps{
		Articles:   articles,
		Claims:     milestones,
		Sender:     sender,
		BaseURL:    cfg.BaseURL,
		GenerateID: uuid.NewString,
		Now:        time.Now,
	}, cfg.CelebrationTimeout)

	retryCfg := orchestrators.DefaultCelebrationRetryConfig()
	retryCfg.Interval = cfg.RetryInterval
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.StaleAfter = 2 * cfg.CelebrationTimeout
	stopRetries := orchestrators.StartCelebrationRetryScheduler(ctx, orchestrators.CelebrationRetryDeps{
		Articles: articles,
		Claims:   milestones,
		Sender:   sender,
		BaseURL:  cfg.BaseURL,
		Now:      time.Now,
	}, retryCfg)

	blobs, err := blob.NewFilesystemStore(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		log.Fatalf("failed to prepare blob directory: %v", err)
	}

	csrfKey := cfg.CSRFKey
	if csrfKey == nil {
		csrfKey = make([]byte, 32)
		if _, err := rand.Read(csrfKey); err != nil {
			log.Fatalf("failed to generate CSRF key: %v", err)
		}
		slog.Warn("csrf_key_random", "hint", "set WIKI_CSRF_KEY so tokens survive restarts")
	}

	server := web.NewServer(web.Deps{
		Articles:   articles,
		Users:      users,
		Counter:    shared,
		Cache:      shared,
		Dispatcher: dispatcher,
		Blobs:      blobs,
		BlobDir:    blobs.Root(),
		Sessions:   middleware.NewSessionStore(shared),
		Health: func(ctx context.Context) error {
			if err := timedDB.PingContext(ctx); err != nil {
				return err
			}
			if redisStore != nil {
				return redisStore.Ping(ctx)
			}
			return nil
		},
	}, web.Options{
		Milestones:            cfg.Milestones,
		ArticleListTTL:        cfg.ArticleListTTL,
		InvalidateListOnWrite: cfg.InvalidateListOnWrite,
		CSRFKey:               csrfKey,
		SecureCookies:         cfg.IsProduction(),
		TrustedOrigins:        trustedOrigins(cfg.BaseURL),
		SlowRequest:           cfg.SlowRequest,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server_failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("server_stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_failed", "error", err)
	}
	stopRetries()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("celebrations_abandoned", "error", err)
	}
	slog.Info("server_stopped")
}

// newLogger builds the process logger from WIKI_LOG_LEVEL and WIKI_LOG_FORMAT.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// trustedOrigins allows form posts whose Origin matches the public base URL.
func trustedOrigins(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
