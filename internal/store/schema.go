package store

import (
	"context"
	"fmt"
)

// createTableStatements defines the full schema. Three layers: raw
// (append-only), normalized (mutated only by the collector) and derived
// (recomputable, safe to delete). Foreign keys document ownership; they
// are not enforced because interaction events may reference posts that
// were never materialized (mention tweets).
var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS raw_fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs (run_id),
		fetched_at TIMESTAMP NOT NULL,
		endpoint TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		cursor_in TEXT,
		cursor_out TEXT,
		truncated INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS runs (
		run_id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'running',
		notes TEXT,
		config_version TEXT NOT NULL,
		config_json TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		handle TEXT,
		name TEXT,
		avatar_url TEXT,
		bio TEXT,
		followers_count INTEGER NOT NULL DEFAULT 0,
		following_count INTEGER NOT NULL DEFAULT 0,
		tweet_count INTEGER NOT NULL DEFAULT 0,
		media_count INTEGER NOT NULL DEFAULT 0,
		favourites_count INTEGER NOT NULL DEFAULT 0,
		is_automated INTEGER NOT NULL DEFAULT 0,
		possibly_sensitive INTEGER NOT NULL DEFAULT 0,
		can_dm INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS posts (
		post_id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES accounts (account_id),
		created_at TIMESTAMP NOT NULL,
		text TEXT NOT NULL,
		metrics_json TEXT,
		conversation_id TEXT,
		in_reply_to_id TEXT,
		last_seen_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs (run_id),
		captured_at TIMESTAMP NOT NULL,
		kind TEXT NOT NULL,
		account_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS snapshot_followers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots (snapshot_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		follow_position INTEGER NOT NULL DEFAULT 0,
		UNIQUE (snapshot_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS snapshot_following (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots (snapshot_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		follow_position INTEGER NOT NULL DEFAULT 0,
		UNIQUE (snapshot_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS intervals (
		interval_id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_start_id INTEGER NOT NULL REFERENCES snapshots (snapshot_id),
		snapshot_end_id INTEGER NOT NULL REFERENCES snapshots (snapshot_id),
		start_at TIMESTAMP NOT NULL,
		end_at TIMESTAMP NOT NULL,
		new_followers_count INTEGER NOT NULL DEFAULT 0,
		lost_followers_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS follow_events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		kind TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS interaction_events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		created_at TIMESTAMP NOT NULL,
		src_id TEXT NOT NULL REFERENCES accounts (account_id),
		dst_id TEXT NOT NULL REFERENCES accounts (account_id),
		interaction_type TEXT NOT NULL,
		post_id TEXT,
		raw_ref_id INTEGER REFERENCES raw_fetches (id)
	)`,

	`CREATE TABLE IF NOT EXISTS post_engagers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		post_id TEXT NOT NULL REFERENCES posts (post_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		engager_type TEXT NOT NULL,
		UNIQUE (interval_id, post_id, account_id, engager_type)
	)`,

	`CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		src_id TEXT NOT NULL REFERENCES accounts (account_id),
		dst_id TEXT NOT NULL REFERENCES accounts (account_id),
		edge_type TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		meta_json TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS communities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		community_id INTEGER NOT NULL,
		confidence REAL NOT NULL DEFAULT 1.0,
		UNIQUE (interval_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		UNIQUE (interval_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS position_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		account_id TEXT NOT NULL REFERENCES accounts (account_id),
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		source TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		interval_id INTEGER NOT NULL REFERENCES intervals (interval_id),
		timeframe_window INTEGER NOT NULL,
		frame_json TEXT NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		build_meta_json TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (interval_id, timeframe_window)
	)`,

	`CREATE TABLE IF NOT EXISTS post_attributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL REFERENCES posts (post_id),
		interval_id INTEGER REFERENCES intervals (interval_id),
		timeframe_window INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		payload_json TEXT NOT NULL,
		built_at TIMESTAMP NOT NULL,
		UNIQUE (post_id, timeframe_window)
	)`,
}

// createIndexStatements cover the hot read paths: window scans over
// intervals and events, per-interval derived lookups, and history
// playback per account.
var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS ix_raw_fetches_run ON raw_fetches (run_id)`,
	`CREATE INDEX IF NOT EXISTS ix_accounts_handle ON accounts (handle)`,
	`CREATE INDEX IF NOT EXISTS ix_posts_author ON posts (author_id)`,
	`CREATE INDEX IF NOT EXISTS ix_posts_created_at ON posts (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_snapshots_run ON snapshots (run_id)`,
	`CREATE INDEX IF NOT EXISTS ix_snapshots_kind_captured ON snapshots (kind, captured_at)`,
	`CREATE INDEX IF NOT EXISTS ix_intervals_end_at ON intervals (end_at)`,
	`CREATE INDEX IF NOT EXISTS ix_follow_events_interval ON follow_events (interval_id, kind)`,
	`CREATE INDEX IF NOT EXISTS ix_interaction_events_created_at ON interaction_events (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_interaction_events_interval ON interaction_events (interval_id)`,
	`CREATE INDEX IF NOT EXISTS ix_interaction_events_post ON interaction_events (post_id)`,
	`CREATE INDEX IF NOT EXISTS ix_post_engagers_post ON post_engagers (post_id)`,
	`CREATE INDEX IF NOT EXISTS ix_edges_interval ON edges (interval_id)`,
	`CREATE INDEX IF NOT EXISTS ix_communities_interval ON communities (interval_id)`,
	`CREATE INDEX IF NOT EXISTS ix_position_history_interval_account ON position_history (interval_id, account_id)`,
	`CREATE INDEX IF NOT EXISTS ix_position_history_account ON position_history (account_id, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS ix_frames_timeframe_created ON frames (timeframe_window, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_post_attributions_timeframe_created ON post_attributions (timeframe_window, created_at)`,
}

// migrate applies the schema. Every statement is idempotent, so calling
// it on an already migrated database is a no-op.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range createTableStatements {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	for _, stmt := range createIndexStatements {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}
