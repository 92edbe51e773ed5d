// Package storage persists decks, cards, retention state, and daily review
// aggregates in SQLite. The scheduling core consumes it through the narrow
// interfaces declared by the review and stats packages.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hmaged/hifz/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Limits accepted by DueCards.
const (
	minDueLimit = 1
	maxDueLimit = 1000
)

// DB wraps the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection keeps the pragma below in force everywhere and
	// sidesteps SQLITE_BUSY under the app's sequential write pattern.
	db.SetMaxOpenConns(1)

	// Cascading deletes (deck -> cards -> progress) need this on.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateDeck inserts a new deck and returns its ID.
func (db *DB) CreateDeck(ctx context.Context, name, description string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (name, description)
		VALUES (?, ?)
	`, name, description)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get deck insert ID: %w", err)
	}
	return id, nil
}

// Decks retrieves all decks, newest first.
func (db *DB) Decks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), card_count, created_at, updated_at
		FROM decks ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		var created, updated string
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CardCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		d.CreatedAt = parseTimestamp(created)
		d.UpdatedAt = parseTimestamp(updated)
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// Deck retrieves a single deck by ID.
func (db *DB) Deck(ctx context.Context, id int64) (domain.Deck, error) {
	var d domain.Deck
	var created, updated string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), card_count, created_at, updated_at
		FROM decks WHERE id = ?
	`, id).Scan(&d.ID, &d.Name, &d.Description, &d.CardCount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deck{}, fmt.Errorf("deck %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Deck{}, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	d.CreatedAt = parseTimestamp(created)
	d.UpdatedAt = parseTimestamp(updated)
	return d, nil
}

// DeleteDeck removes a deck; its cards and their progress rows cascade.
func (db *DB) DeleteDeck(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deck %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CreateCard inserts a card together with its initial retention state in one
// transaction, so a card can never exist without progress. It also bumps the
// owning deck's card count.
func (db *DB) CreateCard(ctx context.Context, card domain.Card, initial domain.RetentionState) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin card insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cards (deck_id, front, back, example_sentence, pronunciation)
		VALUES (?, ?, ?, ?, ?)
	`, card.DeckID, card.Front, card.Back, card.ExampleSentence, card.Pronunciation)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get card insert ID: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE decks SET card_count = card_count + 1, updated_at = datetime('now')
		WHERE id = ?
	`, card.DeckID)
	if err != nil {
		return 0, fmt.Errorf("failed to bump card count for deck %d: %w", card.DeckID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO card_progress (card_id, ease_factor, interval, next_review)
		VALUES (?, ?, ?, ?)
	`, id, initial.EaseFactor, initial.Interval, initial.NextReview.Format(domain.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert progress for card %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit card insert: %w", err)
	}
	return id, nil
}

// Card retrieves a single card by ID.
func (db *DB) Card(ctx context.Context, id int64) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, deck_id, front, back, COALESCE(example_sentence, ''),
		       COALESCE(pronunciation, ''), created_at
		FROM cards WHERE id = ?
	`, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, fmt.Errorf("card %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return card, nil
}

// CardsByDeck retrieves all cards in a deck, newest first.
func (db *DB) CardsByDeck(ctx context.Context, deckID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, deck_id, front, back, COALESCE(example_sentence, ''),
		       COALESCE(pronunciation, ''), created_at
		FROM cards WHERE deck_id = ? ORDER BY created_at DESC, id DESC
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards for deck %d: %w", deckID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// RetentionState retrieves the scheduling state for a card.
func (db *DB) RetentionState(ctx context.Context, cardID int64) (domain.RetentionState, error) {
	var s domain.RetentionState
	var lastReview, lastDifficulty sql.NullString
	var nextReview string
	err := db.conn.QueryRowContext(ctx, `
		SELECT card_id, ease_factor, interval, last_review, next_review,
		       review_count, streak, last_difficulty
		FROM card_progress WHERE card_id = ?
	`, cardID).Scan(&s.CardID, &s.EaseFactor, &s.Interval, &lastReview,
		&nextReview, &s.ReviewCount, &s.Streak, &lastDifficulty)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RetentionState{}, fmt.Errorf("retention state for card %d: %w", cardID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RetentionState{}, fmt.Errorf("failed to find retention state for card %d: %w", cardID, err)
	}

	if lastReview.Valid {
		s.LastReview = parseTimestamp(lastReview.String)
	}
	if lastDifficulty.Valid {
		s.LastDifficulty = domain.Rating(lastDifficulty.String)
	}
	next, err := time.ParseInLocation(domain.DateLayout, nextReview, time.UTC)
	if err != nil {
		return domain.RetentionState{}, fmt.Errorf("bad next_review %q for card %d: %w", nextReview, cardID, err)
	}
	s.NextReview = next
	return s, nil
}

// PutRetentionState writes the full scheduling state for a card. Ease and
// interval are validated here so the pure scheduler never sees bad input.
func (db *DB) PutRetentionState(ctx context.Context, s domain.RetentionState) error {
	if s.EaseFactor < 0 || math.IsNaN(s.EaseFactor) || math.IsInf(s.EaseFactor, 0) || s.Interval < 0 {
		return fmt.Errorf("card %d ease=%v interval=%d: %w", s.CardID, s.EaseFactor, s.Interval, domain.ErrInvalidState)
	}

	var lastReview, lastDifficulty any
	if !s.LastReview.IsZero() {
		lastReview = s.LastReview.UTC().Format(time.RFC3339)
	}
	if s.LastDifficulty != "" {
		lastDifficulty = string(s.LastDifficulty)
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE card_progress
		SET ease_factor = ?, interval = ?, last_review = ?, next_review = ?,
		    review_count = ?, streak = ?, last_difficulty = ?
		WHERE card_id = ?
	`, s.EaseFactor, s.Interval, lastReview, s.NextReview.Format(domain.DateLayout),
		s.ReviewCount, s.Streak, lastDifficulty, s.CardID)
	if err != nil {
		return fmt.Errorf("failed to update retention state for card %d: %w", s.CardID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("retention state for card %d: %w", s.CardID, domain.ErrNotFound)
	}
	return nil
}

// DueCards returns up to limit cards whose next review date has arrived,
// ordered by due date ascending with card ID as the tie break. The order is
// stable across repeated calls within the same day.
func (db *DB) DueCards(ctx context.Context, today time.Time, limit int) ([]domain.Card, error) {
	if limit < minDueLimit || limit > maxDueLimit {
		return nil, fmt.Errorf("limit %d: %w", limit, domain.ErrInvalidLimit)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.deck_id, c.front, c.back, COALESCE(c.example_sentence, ''),
		       COALESCE(c.pronunciation, ''), c.created_at
		FROM cards c
		INNER JOIN card_progress cp ON c.id = cp.card_id
		WHERE cp.next_review <= ?
		ORDER BY cp.next_review ASC, c.id ASC
		LIMIT ?
	`, domain.DateOf(today).Format(domain.DateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// CountDue returns how many cards are due on the given day, with no limit.
func (db *DB) CountDue(ctx context.Context, today time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM card_progress
		WHERE next_review <= ?
	`, domain.DateOf(today).Format(domain.DateLayout)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards: %w", err)
	}
	return n, nil
}

// UpsertDailyAggregate folds session totals into the row for the given day,
// creating it on first write. The additive upsert is a single statement, so
// overlapping sessions cannot lose counts.
func (db *DB) UpsertDailyAggregate(ctx context.Context, date time.Time, totals domain.SessionTotals) error {
	day := domain.DateOf(date).Format(domain.DateLayout)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO daily_stats (date, cards_reviewed, cards_correct, cards_incorrect)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
		    cards_reviewed = cards_reviewed + excluded.cards_reviewed,
		    cards_correct = cards_correct + excluded.cards_correct,
		    cards_incorrect = cards_incorrect + excluded.cards_incorrect
	`, day, totals.Reviewed, totals.Correct, totals.Incorrect)
	if err != nil {
		return fmt.Errorf("failed to upsert daily stats for %s: %w", day, err)
	}
	return nil
}

// DailyAggregates returns the rollups for the trailing sinceDays window
// ending today, newest first. Days without reviews have no row.
func (db *DB) DailyAggregates(ctx context.Context, today time.Time, sinceDays int) ([]domain.DailyAggregate, error) {
	cutoff := domain.AddDays(today, -sinceDays).Format(domain.DateLayout)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT date, cards_reviewed, cards_correct, cards_incorrect
		FROM daily_stats
		WHERE date >= ?
		ORDER BY date DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var aggs []domain.DailyAggregate
	for rows.Next() {
		var a domain.DailyAggregate
		var date string
		if err := rows.Scan(&date, &a.CardsReviewed, &a.CardsCorrect, &a.CardsIncorrect); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		day, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad daily stats date %q: %w", date, err)
		}
		a.Date = day
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var c domain.Card
	var created string
	err := row.Scan(&c.ID, &c.DeckID, &c.Front, &c.Back, &c.ExampleSentence,
		&c.Pronunciation, &created)
	if err != nil {
		return domain.Card{}, err
	}
	c.CreatedAt = parseTimestamp(created)
	return c, nil
}

// parseTimestamp reads the formats sqlite produces for datetime('now') as
// well as RFC3339 written by this package. A zero time is returned for
// anything unparseable; timestamps here are informational, not scheduling
// input.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", domain.DateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
