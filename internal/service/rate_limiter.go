package service

import (
	"context"
	"time"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/internal/policy"
	"github.com/noah-isme/sma-gatepass-api/pkg/calendar"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
)

type requestLedgerRepository interface {
	Increment(ctx context.Context, studentID string, weekStart, now time.Time) (int, error)
}

// RateDecision is the outcome of a weekly request check.
type RateDecision struct {
	Tier      models.Tier
	Count     int
	WeekStart time.Time
	NextReset time.Time
}

// RateLimiter assigns delivery tiers from per-student weekly request counts.
type RateLimiter struct {
	repo     requestLedgerRepository
	calendar *calendar.Calendar
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(repo requestLedgerRepository, cal *calendar.Calendar) *RateLimiter {
	return &RateLimiter{repo: repo, calendar: cal}
}

// CheckAndIncrement bumps the current week's count and maps the new count to a
// tier. The increment is unconditional, so blocked attempts keep counting.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, studentID string, now time.Time) (RateDecision, error) {
	weekStart := l.calendar.WeekStart(now)
	count, err := l.repo.Increment(ctx, studentID, weekStart, now)
	if err != nil {
		return RateDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request ledger")
	}
	return RateDecision{
		Tier:      policy.TierFor(count),
		Count:     count,
		WeekStart: weekStart,
		NextReset: l.calendar.NextWeekStart(now),
	}, nil
}
