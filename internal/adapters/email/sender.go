// Package email delivers outbound mail for the wiki. Celebration emails are the
// only producer today.
package email

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoRecipients = errors.New("email has no recipients")
	ErrNoSubject    = errors.New("email has no subject")
)

// SendRequest is one outbound email.
type SendRequest struct {
	To      []string
	Subject string
	HTML    string
	Text    string

	// IdempotencyKey makes repeated sends of the same logical email collapse into
	// one delivery at providers that support it. Empty disables deduplication.
	IdempotencyKey string
	// Tags are attached to the message as provider metadata, e.g. article_id.
	Tags map[string]string
}

// Validate checks the fields every provider needs.
// POST: Returns ErrNoRecipients or ErrNoSubject, nil otherwise
func (r SendRequest) Validate() error {
	if len(r.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(r.Subject) == "" {
		return ErrNoSubject
	}
	return nil
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers a SendRequest.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
