// Package review orchestrates one review pass: it pulls the due set, applies
// the scheduler per rating, persists results, and folds the session's totals
// into the daily aggregate exactly once per completed batch.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hmaged/hifz/internal/domain"
	"github.com/hmaged/hifz/internal/srs"
)

// ErrStaleIndex is returned when a rating arrives for a card index the
// session has already moved past, e.g. a double-submitted answer.
var ErrStaleIndex = errors.New("review: card index does not match session position")

// Store is the slice of the storage layer the driver needs.
type Store interface {
	DueCards(ctx context.Context, today time.Time, limit int) ([]domain.Card, error)
	RetentionState(ctx context.Context, cardID int64) (domain.RetentionState, error)
	PutRetentionState(ctx context.Context, state domain.RetentionState) error
}

// Recorder receives the totals of a completed batch.
type Recorder interface {
	RecordSession(ctx context.Context, totals domain.SessionTotals) error
}

// SessionState is the externally visible state of a session.
type SessionState string

const (
	// InProgress means the session holds a current card awaiting a rating.
	InProgress SessionState = "in_progress"
	// Empty means no cards are due; starting a new session is the only exit.
	Empty SessionState = "empty"
)

// Session is one review pass over a due set. It is not safe for concurrent
// use; reviews are strict request/response, applied sequentially.
type Session struct {
	cards  []domain.Card
	index  int
	totals domain.SessionTotals
	limit  int
	state  SessionState
}

// State returns the session's current state.
func (s *Session) State() SessionState { return s.state }

// Totals returns the running totals of the current batch.
func (s *Session) Totals() domain.SessionTotals { return s.totals }

// Position returns the zero-based index of the current card and the batch
// size. Meaningless when the session is Empty.
func (s *Session) Position() (index, total int) { return s.index, len(s.cards) }

// Current returns the card awaiting a rating, or false when the session is
// Empty.
func (s *Session) Current() (domain.Card, bool) {
	if s.state != InProgress || s.index >= len(s.cards) {
		return domain.Card{}, false
	}
	return s.cards[s.index], true
}

// Driver runs review sessions against a storage handle supplied at
// construction.
type Driver struct {
	store  Store
	params srs.Params
	stats  Recorder
	log    *slog.Logger
	now    func() time.Time
}

// NewDriver creates a session driver. now may be nil to use time.Now.
func NewDriver(store Store, params srs.Params, stats Recorder, log *slog.Logger, now func() time.Time) *Driver {
	if now == nil {
		now = time.Now
	}
	return &Driver{store: store, params: params, stats: stats, log: log, now: now}
}

// StartSession fetches a bounded due set and returns a session over it. A
// session with no due cards is returned in the Empty state.
func (d *Driver) StartSession(ctx context.Context, maxCards int) (*Session, error) {
	s := &Session{limit: maxCards}
	if err := d.load(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Driver) load(ctx context.Context, s *Session) error {
	cards, err := d.store.DueCards(ctx, d.now(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to load due cards: %w", err)
	}
	s.cards = cards
	s.index = 0
	s.totals = domain.SessionTotals{}
	if len(cards) == 0 {
		s.state = Empty
	} else {
		s.state = InProgress
	}
	return nil
}

// Rate applies the user's rating to the card at cardIndex, which must be the
// session's current position. On the last card of the batch the running
// totals are flushed to the daily aggregate once and a fresh due set is
// loaded, so the returned state is either InProgress or Empty.
//
// A card whose retention state is missing is skipped rather than failing the
// session; it should not happen, but a lost progress row must not strand the
// rest of the batch. A storage error while rating leaves the session position
// unchanged, so the step can be retried. An error during the reload after the
// batch's totals were recorded does not: the batch is finished, a retried
// rating reports ErrStaleIndex, and the caller starts a new session.
func (d *Driver) Rate(ctx context.Context, s *Session, cardIndex int, rating domain.Rating) (SessionState, error) {
	if !rating.Valid() {
		return s.state, fmt.Errorf("%q: %w", rating, domain.ErrInvalidRating)
	}
	if s.state != InProgress {
		return s.state, nil
	}
	if cardIndex != s.index {
		return s.state, fmt.Errorf("got %d, session at %d: %w", cardIndex, s.index, ErrStaleIndex)
	}

	card := s.cards[s.index]
	state, err := d.store.RetentionState(ctx, card.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.log.Warn("retention state missing for due card, skipping",
				"card_id", card.ID, "deck_id", card.DeckID)
			return d.advance(ctx, s)
		}
		return s.state, err
	}

	next := d.params.Apply(state, rating, d.now())
	if err := d.store.PutRetentionState(ctx, next); err != nil {
		return s.state, err
	}

	s.totals.Reviewed++
	if rating.Correct() {
		s.totals.Correct++
	} else {
		s.totals.Incorrect++
	}
	return d.advance(ctx, s)
}

// advance moves to the next card, or finishes the batch: flush the totals
// exactly once, then reload the due set.
func (d *Driver) advance(ctx context.Context, s *Session) (SessionState, error) {
	if s.index < len(s.cards)-1 {
		s.index++
		return s.state, nil
	}

	if s.totals.Reviewed > 0 {
		if err := d.stats.RecordSession(ctx, s.totals); err != nil {
			return s.state, fmt.Errorf("failed to record session totals: %w", err)
		}
	}
	// The batch is recorded. Zero the totals and move past the end before
	// reloading, so a retried rating cannot re-apply the last card or
	// flush the same totals twice if the reload below fails.
	s.totals = domain.SessionTotals{}
	s.index = len(s.cards)
	if err := d.load(ctx, s); err != nil {
		return s.state, err
	}
	return s.state, nil
}
