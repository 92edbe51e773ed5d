package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmaged/hifz/internal/domain"
)

var today = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newState(cardID int64, due time.Time) domain.RetentionState {
	return domain.RetentionState{
		CardID:     cardID,
		EaseFactor: 2.5,
		Interval:   1,
		NextReview: domain.DateOf(due),
	}
}

func mustCreateCard(t *testing.T, db *DB, deckID int64, front string, due time.Time) int64 {
	t.Helper()
	id, err := db.CreateCard(context.Background(), domain.Card{
		DeckID: deckID,
		Front:  front,
		Back:   "back of " + front,
	}, newState(0, due))
	require.NoError(t, err)
	return id
}

func TestDeckLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.CreateDeck(ctx, "Vocabulary", "everyday words")
	require.NoError(t, err)

	deck, err := db.Deck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Vocabulary", deck.Name)
	assert.Equal(t, "everyday words", deck.Description)
	assert.Equal(t, 0, deck.CardCount)

	decks, err := db.Decks(ctx)
	require.NoError(t, err)
	assert.Len(t, decks, 1)

	require.NoError(t, db.DeleteDeck(ctx, id))
	_, err = db.Deck(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, db.DeleteDeck(ctx, id), domain.ErrNotFound)
}

func TestCreateCardCreatesRetentionState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Verbs", "")
	require.NoError(t, err)
	cardID := mustCreateCard(t, db, deckID, "kataba", today)

	state, err := db.RetentionState(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, cardID, state.CardID)
	assert.Equal(t, 2.5, state.EaseFactor)
	assert.Equal(t, 1, state.Interval)
	assert.True(t, state.NextReview.Equal(domain.DateOf(today)))
	assert.True(t, state.LastReview.IsZero())
	assert.Empty(t, state.LastDifficulty)

	deck, err := db.Deck(ctx, deckID)
	require.NoError(t, err)
	assert.Equal(t, 1, deck.CardCount)
}

func TestDeleteDeckCascadesToProgress(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Doomed", "")
	require.NoError(t, err)
	cardID := mustCreateCard(t, db, deckID, "gone", today)

	require.NoError(t, db.DeleteDeck(ctx, deckID))

	_, err = db.Card(ctx, cardID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = db.RetentionState(ctx, cardID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutRetentionStateRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Nouns", "")
	require.NoError(t, err)
	cardID := mustCreateCard(t, db, deckID, "bayt", today)

	updated := domain.RetentionState{
		CardID:         cardID,
		EaseFactor:     2.65,
		Interval:       3,
		LastReview:     today,
		NextReview:     domain.AddDays(today, 3),
		ReviewCount:    1,
		Streak:         1,
		LastDifficulty: domain.Easy,
	}
	require.NoError(t, db.PutRetentionState(ctx, updated))

	got, err := db.RetentionState(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, 2.65, got.EaseFactor)
	assert.Equal(t, 3, got.Interval)
	assert.Equal(t, 1, got.ReviewCount)
	assert.Equal(t, 1, got.Streak)
	assert.Equal(t, domain.Easy, got.LastDifficulty)
	assert.True(t, got.LastReview.Equal(today))
	assert.True(t, got.NextReview.Equal(domain.AddDays(today, 3)))
}

func TestPutRetentionStateRejectsBadInput(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Guard", "")
	require.NoError(t, err)
	cardID := mustCreateCard(t, db, deckID, "x", today)

	bad := newState(cardID, today)
	bad.EaseFactor = -1
	assert.ErrorIs(t, db.PutRetentionState(ctx, bad), domain.ErrInvalidState)

	bad = newState(cardID, today)
	bad.Interval = -5
	assert.ErrorIs(t, db.PutRetentionState(ctx, bad), domain.ErrInvalidState)

	missing := newState(999999, today)
	assert.ErrorIs(t, db.PutRetentionState(ctx, missing), domain.ErrNotFound)
}

func TestDueCardsSelection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Due", "")
	require.NoError(t, err)

	overdue := mustCreateCard(t, db, deckID, "overdue", domain.AddDays(today, -3))
	dueToday := mustCreateCard(t, db, deckID, "today", today)
	mustCreateCard(t, db, deckID, "future", domain.AddDays(today, 2))

	due, err := db.DueCards(ctx, today, 20)
	require.NoError(t, err)
	require.Len(t, due, 2, "future card must not be selected")
	assert.Equal(t, overdue, due[0].ID, "oldest due date first")
	assert.Equal(t, dueToday, due[1].ID)

	// Stable across repeated calls within the same moment.
	again, err := db.DueCards(ctx, today, 20)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, due[0].ID, again[0].ID)
	assert.Equal(t, due[1].ID, again[1].ID)

	limited, err := db.DueCards(ctx, today, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDueCardsLimitValidation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, limit := range []int{0, -1, 1001} {
		_, err := db.DueCards(ctx, today, limit)
		assert.ErrorIs(t, err, domain.ErrInvalidLimit, "limit %d", limit)
	}
	_, err := db.DueCards(ctx, today, 1000)
	assert.NoError(t, err)
}

func TestDueAgainAfterInterval(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Cycle", "")
	require.NoError(t, err)
	cardID := mustCreateCard(t, db, deckID, "cycle", today)

	state := newState(cardID, today)
	state.Interval = 3
	state.LastReview = today
	state.NextReview = domain.AddDays(today, 3)
	require.NoError(t, db.PutRetentionState(ctx, state))

	for day := 1; day < 3; day++ {
		due, err := db.DueCards(ctx, domain.AddDays(today, day), 20)
		require.NoError(t, err)
		assert.Empty(t, due, "card due too early on day %d", day)
	}
	due, err := db.DueCards(ctx, domain.AddDays(today, 3), 20)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, cardID, due[0].ID)
}

func TestCountDue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deckID, err := db.CreateDeck(ctx, "Count", "")
	require.NoError(t, err)

	n, err := db.CountDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	mustCreateCard(t, db, deckID, "past", domain.AddDays(today, -1))
	mustCreateCard(t, db, deckID, "now", today)
	mustCreateCard(t, db, deckID, "future", domain.AddDays(today, 1))

	n, err = db.CountDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertDailyAggregateIsAdditive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertDailyAggregate(ctx, today, domain.SessionTotals{Reviewed: 2, Correct: 1, Incorrect: 1}))
	require.NoError(t, db.UpsertDailyAggregate(ctx, today, domain.SessionTotals{Reviewed: 3, Correct: 2, Incorrect: 1}))

	aggs, err := db.DailyAggregates(ctx, today, 0)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 5, aggs[0].CardsReviewed)
	assert.Equal(t, 3, aggs[0].CardsCorrect)
	assert.Equal(t, 2, aggs[0].CardsIncorrect)
	assert.True(t, aggs[0].Date.Equal(domain.DateOf(today)))
}

func TestDailyAggregatesWindow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, daysAgo := range []int{0, 1, 3, 10} {
		day := domain.AddDays(today, -daysAgo)
		require.NoError(t, db.UpsertDailyAggregate(ctx, day, domain.SessionTotals{Reviewed: 1, Correct: 1}))
	}

	aggs, err := db.DailyAggregates(ctx, today, 5)
	require.NoError(t, err)
	require.Len(t, aggs, 3, "the 10-day-old row is outside the window")
	// Newest first.
	assert.True(t, aggs[0].Date.After(aggs[1].Date))
	assert.True(t, aggs[1].Date.After(aggs[2].Date))
}
