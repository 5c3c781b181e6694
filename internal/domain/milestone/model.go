package milestone

import (
	"errors"
	"time"
)

// Domain errors for milestone claims
var (
	ErrInvalidArticleID = errors.New("article ID must be greater than zero")
	ErrZeroThreshold    = errors.New("threshold must be greater than zero")
)

// Claim records that the celebration for one (article, threshold) pair has been taken.
// The pair is unique in storage, so at most one sender ever owns a given celebration.
type Claim struct {
	ID           string
	ArticleID    int64
	Threshold    int64
	ClaimedAt    time.Time
	Notified     bool   // whether the celebration email was accepted by the provider
	ErrorMessage string // last delivery error, empty on success

	Attempts        int       // failed deliveries so far
	LastAttemptedAt time.Time // zero until the first failure
}

// Validate checks if the Claim has valid data.
// PRE: Claim struct is populated
// POST: Returns nil if valid, error otherwise
func (c *Claim) Validate() error {
	if c.ArticleID <= 0 {
		return ErrInvalidArticleID
	}
	if c.Threshold <= 0 {
		return ErrZeroThreshold
	}
	return nil
}

// Failed reports whether the claim holds an undelivered celebration.
func (c *Claim) Failed() bool {
	return !c.Notified && c.ErrorMessage != ""
}

// CanRetry reports whether another delivery attempt is allowed.
// PRE: maxAttempts > 0
// POST: Returns true for failed claims with fewer than maxAttempts attempts
func (c *Claim) CanRetry(maxAttempts int) bool {
	return c.Failed() && c.Attempts < maxAttempts
}

// Stalled reports whether the claim was taken but never settled: no delivery and no
// recorded failure after staleAfter. This happens when the process stops mid-send.
// PRE: staleAfter exceeds the time a single send may take
func (c *Claim) Stalled(now time.Time, staleAfter time.Duration) bool {
	return !c.Notified && c.ErrorMessage == "" && c.Attempts == 0 && !now.Before(c.ClaimedAt.Add(staleAfter))
}

// NextRetryDelay returns the backoff before the next attempt: baseDelay doubled per
// earlier failure, capped at maxDelay.
// PRE: Attempts is set
// POST: Returns a duration in [baseDelay, maxDelay]
func (c *Claim) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	if c.Attempts <= 1 {
		return min(baseDelay, maxDelay)
	}
	shift := min(c.Attempts-1, 30)
	delay := baseDelay * (1 << shift)
	if delay <= 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}

// DueForRetry reports whether the backoff since the last attempt has elapsed.
func (c *Claim) DueForRetry(now time.Time, baseDelay, maxDelay time.Duration) bool {
	if c.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(c.LastAttemptedAt.Add(c.NextRetryDelay(baseDelay, maxDelay)))
}
