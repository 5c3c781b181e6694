package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wikimasters/internal/adapters/email"
	"wikimasters/internal/domain/milestone"
)

// CelebrationRetryStore defines the ledger operations needed to redeliver celebrations.
type CelebrationRetryStore interface {
	ListFailed(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]milestone.Claim, error)
	MarkNotified(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

// CelebrationRetryDeps holds dependencies for RetryCelebrations.
type CelebrationRetryDeps struct {
	Articles AuthorContactLookup
	Claims   CelebrationRetryStore
	Sender   email.Sender
	BaseURL  string
	Now      func() time.Time
}

// CelebrationRetryConfig holds configuration for the retry scheduler.
type CelebrationRetryConfig struct {
	Interval    time.Duration // how often the ledger is scanned
	BaseDelay   time.Duration // backoff after the first failure
	MaxDelay    time.Duration
	MaxAttempts int           // failures after which a claim is left alone
	StaleAfter  time.Duration // age at which an unsettled claim counts as abandoned
	BatchSize   int
	Enabled     bool
}

// DefaultCelebrationRetryConfig returns the scheduler defaults.
func DefaultCelebrationRetryConfig() CelebrationRetryConfig {
	return CelebrationRetryConfig{
		Interval:    5 * time.Minute,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Hour,
		MaxAttempts: 5,
		StaleAfter:  2 * DefaultCelebrationTimeout,
		BatchSize:   100,
		Enabled:     true,
	}
}

// RetryCelebrationsResult summarises one pass over the ledger.
type RetryCelebrationsResult struct {
	Processed int
	Succeeded int
	Failed    int
	Deferred  int // still inside their backoff window
}

// ExecuteRetryCelebrations redelivers celebration emails whose first send failed.
// Claims left unsettled for cfg.StaleAfter, as after a crash mid-send, are resent too.
// PRE: cfg.MaxAttempts > 0, cfg.BatchSize > 0 and cfg.StaleAfter exceeds the send timeout
// POST: Each due claim is either marked notified or has its failure count incremented
func ExecuteRetryCelebrations(ctx context.Context, cfg CelebrationRetryConfig, deps CelebrationRetryDeps) (RetryCelebrationsResult, error) {
	var res RetryCelebrationsResult

	now := deps.Now()
	claims, err := deps.Claims.ListFailed(ctx, cfg.MaxAttempts, now.Add(-cfg.StaleAfter), cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list failed celebrations: %w", err)
	}
	if len(claims) == 0 {
		return res, nil
	}

	for _, claim := range claims {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !claim.CanRetry(cfg.MaxAttempts) && !claim.Stalled(now, cfg.StaleAfter) {
			continue
		}
		if !claim.DueForRetry(now, cfg.BaseDelay, cfg.MaxDelay) {
			res.Deferred++
			slog.Debug("celebration_retry_backoff", "claim_id", claim.ID,
				"next_retry", claim.LastAttemptedAt.Add(claim.NextRetryDelay(cfg.BaseDelay, cfg.MaxDelay)))
			continue
		}
		res.Processed++

		messageID, err := redeliverCelebration(ctx, claim, deps)
		settleClaim(ctx, deps.Claims, claim.ID, err, deps.Now)
		if err != nil {
			res.Failed++
			slog.Warn("celebration_retry_failed", "claim_id", claim.ID, "article_id", claim.ArticleID,
				"views", claim.Threshold, "attempt", claim.Attempts+1, "error", err)
			continue
		}

		res.Succeeded++
		slog.Info("celebration_retry_sent", "claim_id", claim.ID, "article_id", claim.ArticleID,
			"views", claim.Threshold, "message_id", messageID)
	}

	slog.Info("celebration_retry_complete", "processed", res.Processed, "succeeded", res.Succeeded,
		"failed", res.Failed, "deferred", res.Deferred)
	return res, nil
}

// redeliverCelebration re-reads the author and resends the email for one claim.
func redeliverCelebration(ctx context.Context, claim milestone.Claim, deps CelebrationRetryDeps) (string, error) {
	contact, found, err := deps.Articles.GetAuthorContact(ctx, claim.ArticleID)
	if err != nil {
		return "", fmt.Errorf("lookup author for article %d: %w", claim.ArticleID, err)
	}
	if !found {
		return "", fmt.Errorf("%s: article %d", SkipArticleNotFound, claim.ArticleID)
	}
	if strings.TrimSpace(contact.Email) == "" {
		return "", fmt.Errorf("%s: article %d", SkipNoAuthorEmail, claim.ArticleID)
	}

	msg, err := RenderCelebration(contact, claim.Threshold, deps.BaseURL)
	if err != nil {
		return "", err
	}
	msg.IdempotencyKey = CelebrationIdempotencyKey(claim.ID)
	sent, err := deps.Sender.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCelebrationSend, err)
	}
	return sent.MessageID, nil
}

// StartCelebrationRetryScheduler starts a background goroutine that periodically
// redelivers failed celebrations.
// PRE: Context is valid, deps are initialized
// POST: Goroutine started; the returned function stops it and waits for the current pass
func StartCelebrationRetryScheduler(ctx context.Context, deps CelebrationRetryDeps, cfg CelebrationRetryConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := ExecuteRetryCelebrations(ctx, cfg, deps); err != nil && ctx.Err() == nil {
					slog.Error("celebration_retry_scheduler_error", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
