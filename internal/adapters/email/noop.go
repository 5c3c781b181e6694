package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NoopSender logs emails instead of delivering them. Used when no Resend key is configured.
type NoopSender struct {
	now func() time.Time
}

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{now: time.Now}
}

// Send validates and logs req.
// POST: The message id is derived from the idempotency key when one is set
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	id := req.IdempotencyKey
	if id == "" {
		id = uuid.NewString()
	}
	slog.Info("email_dropped", "to", req.To, "subject", req.Subject, "tags", req.Tags)
	return SendResult{MessageID: "noop-" + id, SentAt: s.now()}, nil
}
