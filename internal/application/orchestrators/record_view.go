package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wikimasters/internal/domain/article"
	"wikimasters/internal/domain/pageview"
)

var tracer = otel.Tracer("wikimasters/orchestrators")

// ViewCounter defines the key-value operation needed by RecordView.
type ViewCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// MilestoneDispatcher receives milestone events. Dispatch must not block on delivery.
type MilestoneDispatcher interface {
	Dispatch(ctx context.Context, event pageview.MilestoneEvent)
}

// RecordViewInput carries input for the record-view orchestrator.
type RecordViewInput struct {
	ArticleID int64
}

// RecordViewResult carries the post-increment count and whether it hit a milestone.
type RecordViewResult struct {
	Count     int64 `json:"count"`
	Milestone bool  `json:"milestone"`
}

// RecordViewDeps holds dependencies for RecordView.
type RecordViewDeps struct {
	Counter    ViewCounter
	Milestones pageview.MilestoneSet // nil uses pageview.DefaultMilestones
	Dispatcher MilestoneDispatcher   // nil disables celebrations
	Now        func() time.Time
}

// ExecuteRecordView increments an article's view counter and fires a celebration on milestones.
// The article's existence is not checked.
// PRE: ArticleID > 0
// POST: Counter incremented exactly once; on an exact milestone hit one event is dispatched
// INVARIANT: notification failures never reach the caller
func ExecuteRecordView(ctx context.Context, input RecordViewInput, deps RecordViewDeps) (RecordViewResult, error) {
	ctx, span := tracer.Start(ctx, "pageview.record")
	defer span.End()
	span.SetAttributes(attribute.Int64("article.id", input.ArticleID))

	if err := article.ValidateID(input.ArticleID); err != nil {
		return RecordViewResult{}, err
	}

	count, err := deps.Counter.Incr(ctx, pageview.Key(input.ArticleID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		return RecordViewResult{}, fmt.Errorf("record view for article %d: %w", input.ArticleID, err)
	}

	milestones := deps.Milestones
	if milestones == nil {
		milestones = pageview.DefaultMilestones
	}

	result := RecordViewResult{Count: count, Milestone: milestones.Contains(count)}
	span.SetAttributes(attribute.Int64("pageview.count", count), attribute.Bool("pageview.milestone", result.Milestone))

	if result.Milestone {
		slog.Info("view_milestone_reached", "article_id", input.ArticleID, "views", count)
		if deps.Dispatcher != nil {
			now := time.Now
			if deps.Now != nil {
				now = deps.Now
			}
			deps.Dispatcher.Dispatch(ctx, pageview.MilestoneEvent{
				ArticleID: input.ArticleID,
				Views:     count,
				ReachedAt: now(),
			})
		}
	} else {
		slog.Debug("view_recorded", "article_id", input.ArticleID, "views", count)
	}

	return result, nil
}
