// Package srs implements the spaced-repetition scheduling policy: given a
// card's retention state and a difficulty rating, it computes the next state
// and due date. It performs no I/O; persisting the result is the caller's job.
package srs

import (
	"math"
	"time"

	"github.com/hmaged/hifz/internal/domain"
)

// Params holds the tunable knobs of the scheduler.
type Params struct {
	InitialInterval   int     // days assigned to a brand-new card
	InitialEaseFactor float64 // ease assigned to a brand-new card
	MinEaseFactor     float64 // ease never drops below this
	MaxInterval       int     // days; Easy/Good intervals never exceed this

	// ClampHardInterval caps the Hard branch at MaxInterval too. Off, only
	// Easy and Good are clamped; Hard growth (x1.2) can drift past the cap
	// on very mature cards.
	ClampHardInterval bool
}

// DefaultParams returns the scheduler defaults.
func DefaultParams() Params {
	return Params{
		InitialInterval:   1,
		InitialEaseFactor: 2.5,
		MinEaseFactor:     1.3,
		MaxInterval:       365,
	}
}

// NewState returns the retention state assigned to a freshly created card:
// initial ease and interval, due today, never reviewed.
func (p Params) NewState(cardID int64, now time.Time) domain.RetentionState {
	return domain.RetentionState{
		CardID:     cardID,
		EaseFactor: p.InitialEaseFactor,
		Interval:   p.InitialInterval,
		NextReview: domain.DateOf(now),
	}
}

// Apply computes the state following one review. It is a total function:
// every combination of state and rating produces a valid successor. The
// returned state has LastReview stamped to now and NextReview set to now's
// calendar day plus the new interval.
//
// Easy and Good scale the interval by the (adjusted) ease factor; Hard grows
// it by a flat 1.2 so progress continues even as ease degrades.
func (p Params) Apply(state domain.RetentionState, rating domain.Rating, now time.Time) domain.RetentionState {
	ease := state.EaseFactor
	interval := state.Interval

	switch rating {
	case domain.Easy:
		ease = math.Max(p.MinEaseFactor, ease+0.15)
		interval = min(p.MaxInterval, round(float64(interval)*ease*1.3))
	case domain.Good:
		ease = math.Max(p.MinEaseFactor, ease)
		interval = min(p.MaxInterval, round(float64(interval)*ease))
	case domain.Hard:
		ease = math.Max(p.MinEaseFactor, ease-0.15)
		interval = round(float64(interval) * 1.2)
		if p.ClampHardInterval {
			interval = min(p.MaxInterval, interval)
		}
	}
	if interval < 1 {
		interval = 1
	}

	next := state
	next.EaseFactor = ease
	next.Interval = interval
	next.LastReview = now
	next.NextReview = domain.AddDays(now, interval)
	next.ReviewCount = state.ReviewCount + 1
	if rating == state.LastDifficulty {
		next.Streak = state.Streak + 1
	} else {
		next.Streak = 1
	}
	next.LastDifficulty = rating
	return next
}

// round rounds half away from zero, matching the original scheduler.
func round(f float64) int {
	return int(math.Round(f))
}
