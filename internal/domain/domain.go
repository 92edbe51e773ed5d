// Package domain holds the core types shared across the scheduling core.
package domain

import "time"

// Rating is the user's judgement of how hard a card was to recall.
// The string codes are what the database stores in last_difficulty.
type Rating string

const (
	Easy Rating = "easy"
	Good Rating = "good"
	Hard Rating = "hard"
)

// Valid reports whether r is one of the three known ratings.
func (r Rating) Valid() bool {
	switch r {
	case Easy, Good, Hard:
		return true
	}
	return false
}

// Correct reports whether the rating counts as a correct recall.
// Easy and Good are correct; only Hard is an incorrect recall.
func (r Rating) Correct() bool {
	return r != Hard
}

// Deck is a named collection of cards.
type Deck struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CardCount   int       `json:"card_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Card is a single learnable item. Content fields are opaque to the
// scheduling core; it only ever routes cards by ID.
type Card struct {
	ID              int64     `json:"id"`
	DeckID          int64     `json:"deck_id"`
	Front           string    `json:"front"`
	Back            string    `json:"back"`
	ExampleSentence string    `json:"example_sentence,omitempty"`
	Pronunciation   string    `json:"pronunciation,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RetentionState is the per-card spaced-repetition bookkeeping. Exactly one
// exists per card, created together with the card and removed with it.
type RetentionState struct {
	CardID         int64
	EaseFactor     float64
	Interval       int       // whole days
	LastReview     time.Time // zero until the first rating
	NextReview     time.Time // day granularity, always set
	ReviewCount    int
	Streak         int    // consecutive applications of the same rating
	LastDifficulty Rating // empty until the first rating
}

// DailyAggregate is the per-calendar-day rollup of review counts.
type DailyAggregate struct {
	Date           time.Time // day granularity
	CardsReviewed  int
	CardsCorrect   int
	CardsIncorrect int
}

// SessionTotals is the running tally of one review session, flushed into
// the daily aggregate once per completed batch.
type SessionTotals struct {
	Reviewed  int `json:"reviewed" validate:"gte=0"`
	Correct   int `json:"correct" validate:"gte=0"`
	Incorrect int `json:"incorrect" validate:"gte=0"`
}

// Consistent reports whether the totals satisfy correct+incorrect <= reviewed.
func (t SessionTotals) Consistent() bool {
	return t.Correct >= 0 && t.Incorrect >= 0 && t.Reviewed >= 0 &&
		t.Correct+t.Incorrect <= t.Reviewed
}
