package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wikimasters/internal/domain/pageview"
)

// DefaultCelebrationTimeout bounds a single celebration send.
const DefaultCelebrationTimeout = 10 * time.Second

// CelebrationDispatcher runs ExecuteSendCelebration off the request path.
// Each event gets its own goroutine with a context detached from the request.
type CelebrationDispatcher struct {
	deps    SendCelebrationDeps
	timeout time.Duration
	send    func(context.Context, SendCelebrationInput, SendCelebrationDeps) (SendCelebrationResult, error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ MilestoneDispatcher = (*CelebrationDispatcher)(nil)

// NewCelebrationDispatcher creates a dispatcher. A non-positive timeout uses DefaultCelebrationTimeout.
func NewCelebrationDispatcher(deps SendCelebrationDeps, timeout time.Duration) *CelebrationDispatcher {
	if timeout <= 0 {
		timeout = DefaultCelebrationTimeout
	}
	return &CelebrationDispatcher{
		deps:    deps,
		timeout: timeout,
		send:    ExecuteSendCelebration,
	}
}

// Dispatch starts a celebration send and returns immediately.
// PRE: event describes an exact milestone hit
// POST: The send runs in the background; errors and panics are logged, never returned
func (d *CelebrationDispatcher) Dispatch(ctx context.Context, event pageview.MilestoneEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		slog.Warn("celebration_dropped", "article_id", event.ArticleID, "views", event.Views, "reason", "dispatcher_closed")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("celebration_panic", "article_id", event.ArticleID, "views", event.Views, "panic", fmt.Sprint(r))
			}
		}()

		if _, err := d.send(sendCtx, SendCelebrationInput{Event: event}, d.deps); err != nil {
			slog.Error("celebration_send_failed", "article_id", event.ArticleID, "views", event.Views, "error", err)
		}
	}()
}

// Close stops accepting events and waits for in-flight sends.
// PRE: none
// POST: Returns nil once all sends finish, or ctx.Err() if ctx ends first
func (d *CelebrationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("celebration_dispatcher_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
