package email

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers email through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// NewResendSender creates a ResendSender.
// PRE: apiKey is a Resend API key; from is a verified sender address
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		now:    time.Now,
	}
}

// Send submits req to Resend. A non-empty IdempotencyKey is sent as the
// Idempotency-Key header, so a resend of the same key within Resend's window
// returns the original message instead of delivering twice.
// PRE: req passes Validate
// POST: Returns the Resend message id
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		Text:    req.Text,
		Tags:    resendTags(req.Tags),
	}

	// An empty key sends no header.
	opts := &resend.SendEmailOptions{IdempotencyKey: req.IdempotencyKey}

	sent, err := s.client.Emails.SendWithOptions(ctx, params, opts)
	if err != nil {
		return SendResult{}, fmt.Errorf("resend: %w", err)
	}

	slog.Debug("resend_accepted", "message_id", sent.Id, "idempotency_key", req.IdempotencyKey)
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

// resendTags converts tags to Resend's list form, ordered by name.
func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]resend.Tag, 0, len(tags))
	for _, name := range slices.Sorted(maps.Keys(tags)) {
		out = append(out, resend.Tag{Name: name, Value: tags[name]})
	}
	return out
}
