package db

const schemaVersion = 1

// outcome is NULL or 'PENDING' until resolution; resolved_at is set in the
// same statement that writes a terminal outcome.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    market_title TEXT NOT NULL DEFAULT '',
    venue TEXT NOT NULL DEFAULT '',
    event_time INTEGER NOT NULL DEFAULT 0,
    market_snapshot_hash TEXT NOT NULL DEFAULT '',
    weather_json TEXT NOT NULL DEFAULT '',
    ai_digest TEXT NOT NULL DEFAULT '',
    confidence TEXT NOT NULL DEFAULT 'MEDIUM',
    odds_efficiency TEXT NOT NULL DEFAULT 'EFFICIENT',
    side TEXT,
    platform TEXT,
    author_address TEXT NOT NULL,
    tx_hash TEXT,
    total_tips TEXT NOT NULL DEFAULT '0',
    timestamp INTEGER NOT NULL,
    outcome TEXT,
    resolved_at INTEGER,
    CHECK ((outcome IS NULL OR outcome = 'PENDING') = (resolved_at IS NULL))
);
CREATE INDEX IF NOT EXISTS idx_signals_event_outcome ON signals(event_id, outcome);
CREATE INDEX IF NOT EXISTS idx_signals_author ON signals(author_address);
CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);

CREATE TABLE IF NOT EXISTS user_stats (
    user_address TEXT PRIMARY KEY,
    total_predictions INTEGER NOT NULL DEFAULT 0,
    win_count INTEGER NOT NULL DEFAULT 0,
    loss_count INTEGER NOT NULL DEFAULT 0,
    total_earnings TEXT NOT NULL DEFAULT '0',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
