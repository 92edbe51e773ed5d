// Package stats maintains the per-day review rollups and derives the
// consecutive-day streak and daily-goal progress from them.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hmaged/hifz/internal/domain"
)

// Lookback is the longest streak the walk-back will count, in days.
const Lookback = 365

// Store is the slice of the storage layer the accumulator needs.
type Store interface {
	UpsertDailyAggregate(ctx context.Context, date time.Time, totals domain.SessionTotals) error
	DailyAggregates(ctx context.Context, today time.Time, sinceDays int) ([]domain.DailyAggregate, error)
}

var validate = validator.New()

// Accumulator folds completed review sessions into daily aggregates and
// answers streak and goal queries.
type Accumulator struct {
	store Store
	goal  int
	now   func() time.Time
}

// New creates an accumulator over the given store. goal is the configured
// number of daily cards; now may be nil to use time.Now.
func New(store Store, goal int, now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{store: store, goal: goal, now: now}
}

// RecordSession folds one completed session's totals into today's aggregate.
// Call it exactly once per session with the session's full totals; per-card
// calls double count.
func (a *Accumulator) RecordSession(ctx context.Context, totals domain.SessionTotals) error {
	if err := validate.Struct(totals); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTotals, err)
	}
	if !totals.Consistent() {
		return fmt.Errorf("%d correct + %d incorrect > %d reviewed: %w",
			totals.Correct, totals.Incorrect, totals.Reviewed, domain.ErrInvalidTotals)
	}
	return a.store.UpsertDailyAggregate(ctx, a.now(), totals)
}

// Streak returns the number of consecutive days with at least one review,
// counted backward from today. Today is exempt: a day with no reviews yet
// does not break a run that ended yesterday. The walk stops at the first
// earlier day without reviews and is capped at Lookback days.
func (a *Accumulator) Streak(ctx context.Context) (int, error) {
	today := domain.DateOf(a.now())
	aggs, err := a.store.DailyAggregates(ctx, today, Lookback)
	if err != nil {
		return 0, fmt.Errorf("failed to load aggregates for streak: %w", err)
	}

	reviewed := make(map[string]int, len(aggs))
	for _, agg := range aggs {
		reviewed[agg.Date.Format(domain.DateLayout)] = agg.CardsReviewed
	}

	streak := 0
	for i := 0; i < Lookback; i++ {
		day := domain.AddDays(today, -i).Format(domain.DateLayout)
		if reviewed[day] > 0 {
			streak++
		} else if i > 0 {
			break
		}
	}
	return streak, nil
}

// DailyProgress reports how many cards were reviewed today against the
// configured daily goal.
func (a *Accumulator) DailyProgress(ctx context.Context) (reviewed, goal int, err error) {
	today := domain.DateOf(a.now())
	aggs, err := a.store.DailyAggregates(ctx, today, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load today's aggregate: %w", err)
	}
	for _, agg := range aggs {
		if domain.SameDay(agg.Date, today) {
			reviewed = agg.CardsReviewed
		}
	}
	return reviewed, a.goal, nil
}
