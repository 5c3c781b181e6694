package pageview

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// keyPrefix is concatenated with the article id without a separator,
// e.g. "pageview:articles42". Existing counters in the shared store use this layout.
const keyPrefix = "pageview:articles"

// Domain errors
var (
	ErrEmptyMilestones   = errors.New("milestone set cannot be empty")
	ErrNonPositiveTarget = errors.New("milestone thresholds must be greater than zero")
)

// DefaultMilestones are the view counts that trigger a celebration.
var DefaultMilestones = MilestoneSet{5, 10, 100, 1000, 10000}

// Key returns the shared-store counter key for an article.
func Key(articleID int64) string {
	return keyPrefix + strconv.FormatInt(articleID, 10)
}

// MilestoneSet is an ascending, duplicate-free list of view-count thresholds.
type MilestoneSet []int64

// NewMilestoneSet builds a MilestoneSet from arbitrary thresholds.
// PRE: values are positive
// POST: Returns a sorted, de-duplicated set or an error
func NewMilestoneSet(values ...int64) (MilestoneSet, error) {
	if len(values) == 0 {
		return nil, ErrEmptyMilestones
	}
	set := make(MilestoneSet, 0, len(values))
	for _, v := range values {
		if v <= 0 {
			return nil, ErrNonPositiveTarget
		}
		set = append(set, v)
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}

// ParseMilestones parses a comma separated list such as "5,10,100".
func ParseMilestones(raw string) (MilestoneSet, error) {
	var values []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid milestone %q: %w", part, err)
		}
		values = append(values, v)
	}
	return NewMilestoneSet(values...)
}

// Contains reports whether count is exactly one of the thresholds.
// Crossing a threshold without landing on it does not count.
func (m MilestoneSet) Contains(count int64) bool {
	_, found := slices.BinarySearch(m, count)
	return found
}

// String renders the set in the same form ParseMilestones accepts.
func (m MilestoneSet) String() string {
	parts := make([]string, len(m))
	for i, v := range m {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// MilestoneEvent is emitted when an article's view counter lands on a milestone.
type MilestoneEvent struct {
	ArticleID int64
	Views     int64
	ReachedAt time.Time
}
