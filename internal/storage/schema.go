package storage

const schema = `
-- Decks group cards; card_count is maintained on insert and by cascade.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT,
    card_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    example_sentence TEXT,
    pronunciation TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),

    FOREIGN KEY (deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

-- One progress row per card, created in the same transaction as the card.
-- Dates are day-granularity ISO strings so they compare correctly as text.
CREATE TABLE IF NOT EXISTS card_progress (
    card_id INTEGER PRIMARY KEY,
    ease_factor REAL NOT NULL,
    interval INTEGER NOT NULL,
    last_review TEXT,
    next_review TEXT NOT NULL,
    review_count INTEGER NOT NULL DEFAULT 0,
    streak INTEGER NOT NULL DEFAULT 0,
    last_difficulty TEXT,

    FOREIGN KEY (card_id) REFERENCES cards(id) ON DELETE CASCADE
);

-- Per-day review rollups; rows are created lazily and never deleted.
CREATE TABLE IF NOT EXISTS daily_stats (
    date TEXT PRIMARY KEY,
    cards_reviewed INTEGER NOT NULL DEFAULT 0,
    cards_correct INTEGER NOT NULL DEFAULT 0,
    cards_incorrect INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_id ON cards(deck_id);
CREATE INDEX IF NOT EXISTS idx_card_progress_next_review ON card_progress(next_review);
`
