package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const attributionColumns = `id, post_id, interval_id, timeframe_window,
	created_at, payload_json, built_at`

// UpsertPostAttribution caches a computed attribution payload, replacing
// any previous build for the same (post, timeframe).
func (s *Store) UpsertPostAttribution(ctx context.Context, a PostAttribution) error {
	var intervalID any
	if a.IntervalID != 0 {
		intervalID = a.IntervalID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_attributions (post_id, interval_id, timeframe_window, created_at, payload_json, built_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (post_id, timeframe_window) DO UPDATE SET
			interval_id = excluded.interval_id,
			created_at = excluded.created_at,
			payload_json = excluded.payload_json,
			built_at = excluded.built_at`,
		a.PostID, intervalID, a.TimeframeWindow, a.CreatedAt.UTC(), a.PayloadJSON, a.BuiltAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting attribution for post %s: %w", a.PostID, err)
	}

	return nil
}

// GetPostAttribution returns the cached attribution for (post, timeframe).
func (s *Store) GetPostAttribution(ctx context.Context, postID string, timeframeWindow int64) (PostAttribution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attributionColumns+` FROM post_attributions
		WHERE post_id = ? AND timeframe_window = ?`, postID, timeframeWindow)

	a, err := scanAttribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PostAttribution{}, ErrNotFound
	}

	if err != nil {
		return PostAttribution{}, fmt.Errorf("reading attribution for post %s: %w", postID, err)
	}

	return a, nil
}

// ListPostAttributions returns cached attributions for a timeframe,
// newest post first.
func (s *Store) ListPostAttributions(ctx context.Context, timeframeWindow int64, limit int) ([]PostAttribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attributionColumns+` FROM post_attributions
		WHERE timeframe_window = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, timeframeWindow, limit)
	if err != nil {
		return nil, fmt.Errorf("listing attributions: %w", err)
	}
	defer rows.Close()

	var attributions []PostAttribution

	for rows.Next() {
		a, err := scanAttribution(rows)
		if err != nil {
			return nil, fmt.Errorf("listing attributions: %w", err)
		}

		attributions = append(attributions, a)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing attributions: %w", err)
	}

	return attributions, nil
}

// DeleteAttributionsForTimeframe clears all cached attributions for a
// timeframe. Used before a forced rebuild.
func (s *Store) DeleteAttributionsForTimeframe(ctx context.Context, timeframeWindow int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM post_attributions WHERE timeframe_window = ?`, timeframeWindow)
	if err != nil {
		return 0, fmt.Errorf("deleting attributions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting attributions: %w", err)
	}

	return n, nil
}

// DeleteAttributionsWithPrefix clears cached attributions for posts
// whose id starts with prefix within one timeframe. Used to reseed mock
// data.
func (s *Store) DeleteAttributionsWithPrefix(ctx context.Context, timeframeWindow int64, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM post_attributions
		WHERE timeframe_window = ? AND post_id LIKE ?`, timeframeWindow, prefix+"%")
	if err != nil {
		return 0, fmt.Errorf("deleting attributions with prefix %q: %w", prefix, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting attributions with prefix %q: %w", prefix, err)
	}

	return n, nil
}

func scanAttribution(row rowScanner) (PostAttribution, error) {
	var (
		a          PostAttribution
		intervalID sql.NullInt64
	)

	err := row.Scan(&a.ID, &a.PostID, &intervalID, &a.TimeframeWindow, &a.CreatedAt, &a.PayloadJSON, &a.BuiltAt)
	if err != nil {
		return PostAttribution{}, err
	}

	a.IntervalID = fromNullInt(intervalID)
	a.CreatedAt = a.CreatedAt.UTC()
	a.BuiltAt = a.BuiltAt.UTC()

	return a, nil
}
