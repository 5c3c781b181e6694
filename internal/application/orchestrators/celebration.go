package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"wikimasters/internal/adapters/email"
	"wikimasters/internal/domain/article"
	"wikimasters/internal/domain/milestone"
	"wikimasters/internal/domain/pageview"
)

// Reasons a celebration was not sent.
const (
	SkipArticleNotFound = "article_not_found"
	SkipNoAuthorEmail   = "no_author_email"
	SkipAlreadyClaimed  = "already_claimed"
)

// ledgerTimeout bounds claim bookkeeping after a send attempt.
const ledgerTimeout = 5 * time.Second

// ErrCelebrationSend wraps provider failures for the celebration email.
var ErrCelebrationSend = errors.New("celebration email send failed")

// AuthorContactLookup defines the article query needed to address a celebration.
type AuthorContactLookup interface {
	GetAuthorContact(ctx context.Context, id int64) (article.AuthorContact, bool, error)
}

// MilestoneClaimStore defines the ledger operations needed by SendCelebration.
type MilestoneClaimStore interface {
	Claim(ctx context.Context, c milestone.Claim) (bool, error)
	MarkNotified(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

// SendCelebrationInput carries the milestone event to celebrate.
type SendCelebrationInput struct {
	Event pageview.MilestoneEvent
}

// SendCelebrationResult reports what happened to a celebration.
type SendCelebrationResult struct {
	Sent       bool
	SkipReason string
	MessageID  string
}

// SendCelebrationDeps holds dependencies for SendCelebration.
type SendCelebrationDeps struct {
	Articles   AuthorContactLookup
	Claims     MilestoneClaimStore // nil sends without an idempotency check
	Sender     email.Sender
	BaseURL    string // public site root used to build the article link
	GenerateID func() string
	Now        func() time.Time
}

// celebrationRenderer converts the markdown email template to HTML. Raw HTML is escaped.
var celebrationRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// ExecuteSendCelebration emails an article's author about a view milestone.
// PRE: Event.ArticleID > 0 and Event.Views is a milestone
// POST: At most one email per (article, milestone) when Claims is set; delivery errors are recorded on the claim
func ExecuteSendCelebration(ctx context.Context, input SendCelebrationInput, deps SendCelebrationDeps) (SendCelebrationResult, error) {
	ev := input.Event

	contact, found, err := deps.Articles.GetAuthorContact(ctx, ev.ArticleID)
	if err != nil {
		return SendCelebrationResult{}, fmt.Errorf("lookup author for article %d: %w", ev.ArticleID, err)
	}
	if !found {
		slog.Info("celebration_skipped", "article_id", ev.ArticleID, "views", ev.Views, "reason", SkipArticleNotFound)
		return SendCelebrationResult{SkipReason: SkipArticleNotFound}, nil
	}
	if strings.TrimSpace(contact.Email) == "" {
		slog.Info("celebration_skipped", "article_id", ev.ArticleID, "views", ev.Views, "reason", SkipNoAuthorEmail)
		return SendCelebrationResult{SkipReason: SkipNoAuthorEmail}, nil
	}

	var claimID string
	if deps.Claims != nil {
		claim := milestone.Claim{
			ID:        deps.GenerateID(),
			ArticleID: ev.ArticleID,
			Threshold: ev.Views,
			ClaimedAt: deps.Now(),
		}
		if err := claim.Validate(); err != nil {
			return SendCelebrationResult{}, err
		}
		claimed, err := deps.Claims.Claim(ctx, claim)
		if err != nil {
			return SendCelebrationResult{}, err
		}
		if !claimed {
			slog.Info("celebration_skipped", "article_id", ev.ArticleID, "views", ev.Views, "reason", SkipAlreadyClaimed)
			return SendCelebrationResult{SkipReason: SkipAlreadyClaimed}, nil
		}
		claimID = claim.ID
	}

	msg, err := RenderCelebration(contact, ev.Views, deps.BaseURL)
	if err != nil {
		return SendCelebrationResult{}, err
	}
	if claimID != "" {
		msg.IdempotencyKey = CelebrationIdempotencyKey(claimID)
	}

	sent, err := deps.Sender.Send(ctx, msg)
	if claimID != "" {
		settleClaim(ctx, deps.Claims, claimID, err, deps.Now)
	}
	if err != nil {
		return SendCelebrationResult{}, fmt.Errorf("%w: article %d views %d: %w", ErrCelebrationSend, ev.ArticleID, ev.Views, err)
	}

	slog.Info("celebration_sent", "article_id", ev.ArticleID, "views", ev.Views, "message_id", sent.MessageID)
	return SendCelebrationResult{Sent: true, MessageID: sent.MessageID}, nil
}

// claimSettler is the part of the ledger that records a send outcome.
type claimSettler interface {
	MarkNotified(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, at time.Time) error
}

// settleClaim records the outcome of a send on its claim. It runs on a context detached
// from ctx so a send that used up the deadline still leaves a retryable failure behind.
func settleClaim(ctx context.Context, claims claimSettler, claimID string, sendErr error, now func() time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	if sendErr != nil {
		if err := claims.MarkFailed(ctx, claimID, sendErr.Error(), now()); err != nil {
			slog.Error("celebration_mark_failed_error", "claim_id", claimID, "error", err)
		}
		return
	}
	if err := claims.MarkNotified(ctx, claimID); err != nil {
		slog.Warn("celebration_mark_notified_error", "claim_id", claimID, "error", err)
	}
}

// RenderCelebration builds the celebration email for an author.
// POST: Subject is "your article on wikimasters got page view <n>"; HTML is rendered from markdown
func RenderCelebration(contact article.AuthorContact, views int64, baseURL string) (email.SendRequest, error) {
	name := strings.TrimSpace(contact.Name)
	if name == "" {
		name = "Friend"
	}
	link := strings.TrimRight(baseURL, "/") + "/wiki/" + strconv.FormatInt(contact.ArticleID, 10)
	count := strconv.FormatInt(views, 10)

	var md strings.Builder
	md.WriteString("# Congratulations, " + escapeMarkdown(name) + "!\n\n")
	md.WriteString("Your article **" + escapeMarkdown(contact.Title) + "** just reached **" + count + "** page views on Wikimasters.\n\n")
	md.WriteString("[Read your article](" + link + ")\n\n")
	md.WriteString("Thanks for writing. Keep it up!\n")

	var html bytes.Buffer
	if err := celebrationRenderer.Convert([]byte(md.String()), &html); err != nil {
		return email.SendRequest{}, fmt.Errorf("render celebration: %w", err)
	}

	text := fmt.Sprintf("Congratulations, %s!\n\nYour article %q just reached %s page views on Wikimasters.\n\nRead it: %s\n",
		name, contact.Title, count, link)

	return email.SendRequest{
		To:      []string{contact.Email},
		Subject: "your article on wikimasters got page view " + count,
		HTML:    html.String(),
		Text:    text,
		Tags: map[string]string{
			"category":   "celebration",
			"article_id": strconv.FormatInt(contact.ArticleID, 10),
			"milestone":  count,
		},
	}, nil
}

// CelebrationIdempotencyKey is the provider idempotency key for a ledger claim.
// Every delivery attempt for one claim shares it.
func CelebrationIdempotencyKey(claimID string) string {
	return "celebration/" + claimID
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"#", `\#`, "<", `\<`, ">", `\>`, "!", `\!`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
