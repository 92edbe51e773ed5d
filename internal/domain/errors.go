package domain

import "errors"

// Sentinel errors shared across the core. Check with errors.Is.
var (
	// ErrNotFound is returned when a deck, card, or retention state does
	// not exist.
	ErrNotFound = errors.New("hifz: not found")

	// ErrInvalidRating is returned for a rating outside {easy, good, hard}.
	ErrInvalidRating = errors.New("hifz: invalid rating")

	// ErrInvalidLimit is returned when a due-set query limit falls outside
	// the accepted [1, 1000] range.
	ErrInvalidLimit = errors.New("hifz: due limit out of range [1, 1000]")

	// ErrInvalidTotals is returned when session totals are negative or
	// correct+incorrect exceeds reviewed.
	ErrInvalidTotals = errors.New("hifz: inconsistent session totals")

	// ErrInvalidState is returned by the storage boundary for retention
	// state with a negative or non-finite ease or a negative interval.
	ErrInvalidState = errors.New("hifz: invalid retention state")
)
