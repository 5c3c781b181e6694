// Package config loads application settings from the environment.
//
// # Environment Variables
//
// ## Server
//   - WIKI_ADDR: listen address (default: :8080)
//   - WIKI_ENV: development or production (default: development)
//   - WIKI_BASE_URL: public origin used in email links (default: http://localhost:8080)
//   - WIKI_CSRF_KEY: hex-encoded 32 byte key for CSRF tokens; required in production,
//     random per process otherwise
//   - WIKI_SLOW_REQUEST_MS: slow request warning threshold (default: 500)
//   - WIKI_LOG_LEVEL: debug, info, warn or error (default: info)
//   - WIKI_LOG_FORMAT: text or json (default: text)
//
// ## Storage
//   - WIKI_DB_PATH: SQLite database file (default: wikimasters.db)
//   - WIKI_SLOW_QUERY_MS: slow query warning threshold (default: 50)
//   - WIKI_REDIS_URL: redis:// URL of the shared store; SQLite tables are used when empty
//   - WIKI_BLOB_DIR: attachment directory (default: blobs)
//   - WIKI_BLOB_BASE_URL: URL prefix attachments are served under (default: /blobs)
//
// ## Page views and caching
//   - WIKI_MILESTONES: comma separated celebration thresholds (default: 5,10,100,1000,10000)
//   - WIKI_ARTICLE_LIST_TTL: lifetime of the cached listing (default: 60s)
//   - WIKI_INVALIDATE_LIST_ON_WRITE: drop the cached listing after article writes (default: true)
//   - WIKI_CELEBRATION_TIMEOUT: deadline for one celebration email (default: 10s)
//   - WIKI_CELEBRATION_RETRY_INTERVAL: how often failed celebrations are resent (default: 5m)
//   - WIKI_CELEBRATION_MAX_ATTEMPTS: failures after which a celebration is given up (default: 5)
//
// ## Email
//   - WIKI_RESEND_KEY: Resend API key; emails are logged and dropped when empty
//   - WIKI_RESEND_FROM: sender address (default: Wikimasters <noreply@wikimasters.app>)
//
// ## Accounts
//   - WIKI_ADMIN_EMAIL: seeded when the users table is empty
//   - WIKI_ADMIN_PASSWORD: password for the seeded account
//
// ## Tracing
//   - WIKI_TRACING_ENABLED: export spans over OTLP gRPC (default: false)
//   - WIKI_TRACING_ENDPOINT: collector address (default: localhost:4317)
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wikimasters/internal/domain/pageview"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Addr        string
	Env         string
	BaseURL     string
	CSRFKey     []byte // nil when unset
	SlowRequest time.Duration
	LogLevel    string
	LogFormat   string

	DBPath      string
	SlowQuery   time.Duration
	RedisURL    string
	BlobDir     string
	BlobBaseURL string

	Milestones            pageview.MilestoneSet
	ArticleListTTL        time.Duration
	InvalidateListOnWrite bool
	CelebrationTimeout    time.Duration
	RetryInterval         time.Duration
	RetryMaxAttempts      int

	ResendKey  string
	ResendFrom string

	AdminEmail    string
	AdminPassword string

	TracingEnabled  bool
	TracingEndpoint string
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoadConfig reads a .env file when present and then the process environment.
// PRE: none
// POST: Returns a fully populated Config, or every malformed variable joined into one error
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Addr:            getEnv("WIKI_ADDR", ":8080"),
		Env:             getEnv("WIKI_ENV", "development"),
		BaseURL:         strings.TrimRight(getEnv("WIKI_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:        strings.ToLower(getEnv("WIKI_LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("WIKI_LOG_FORMAT", "text")),
		DBPath:          getEnv("WIKI_DB_PATH", "wikimasters.db"),
		RedisURL:        getEnv("WIKI_REDIS_URL", ""),
		BlobDir:         getEnv("WIKI_BLOB_DIR", "blobs"),
		BlobBaseURL:     strings.TrimRight(getEnv("WIKI_BLOB_BASE_URL", "/blobs"), "/"),
		ResendKey:       getEnv("WIKI_RESEND_KEY", ""),
		ResendFrom:      getEnv("WIKI_RESEND_FROM", "Wikimasters <noreply@wikimasters.app>"),
		AdminEmail:      getEnv("WIKI_ADMIN_EMAIL", ""),
		AdminPassword:   getEnv("WIKI_ADMIN_PASSWORD", ""),
		TracingEndpoint: getEnv("WIKI_TRACING_ENDPOINT", "localhost:4317"),
	}

	var err error
	cfg.SlowRequest, err = getEnvMillis("WIKI_SLOW_REQUEST_MS", 500*time.Millisecond)
	collect(err)
	cfg.SlowQuery, err = getEnvMillis("WIKI_SLOW_QUERY_MS", 50*time.Millisecond)
	collect(err)
	cfg.ArticleListTTL, err = getEnvDuration("WIKI_ARTICLE_LIST_TTL", 60*time.Second)
	collect(err)
	cfg.CelebrationTimeout, err = getEnvDuration("WIKI_CELEBRATION_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.RetryInterval, err = getEnvDuration("WIKI_CELEBRATION_RETRY_INTERVAL", 5*time.Minute)
	collect(err)
	cfg.RetryMaxAttempts, err = getEnvInt("WIKI_CELEBRATION_MAX_ATTEMPTS", 5)
	collect(err)
	cfg.InvalidateListOnWrite, err = getEnvBool("WIKI_INVALIDATE_LIST_ON_WRITE", true)
	collect(err)
	cfg.TracingEnabled, err = getEnvBool("WIKI_TRACING_ENABLED", false)
	collect(err)

	cfg.Milestones = pageview.DefaultMilestones
	if raw, ok := os.LookupEnv("WIKI_MILESTONES"); ok && strings.TrimSpace(raw) != "" {
		cfg.Milestones, err = pageview.ParseMilestones(raw)
		if err != nil {
			collect(fmt.Errorf("WIKI_MILESTONES: %w", err))
		}
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		collect(fmt.Errorf("WIKI_LOG_FORMAT: unsupported format %q", cfg.LogFormat))
	}
	if keyHex := getEnv("WIKI_CSRF_KEY", ""); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			collect(errors.New("WIKI_CSRF_KEY: must be 64 hex characters (32 bytes)"))
		}
		cfg.CSRFKey = key
	} else if cfg.IsProduction() {
		collect(errors.New("WIKI_CSRF_KEY: required when WIKI_ENV=production"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// getEnvDuration accepts Go duration syntax ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		value = strconv.Itoa(secs) + "s"
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return defaultValue, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue, fmt.Errorf("%s: expected a positive integer, got %q", key, value)
	}
	return n, nil
}

func getEnvMillis(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms <= 0 {
		return defaultValue, fmt.Errorf("%s: expected a positive integer, got %q", key, value)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
