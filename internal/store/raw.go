package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertRawFetch appends one paged API response. The payload is
// compressed at rest and never mutated afterwards.
func (s *Store) InsertRawFetch(ctx context.Context, f RawFetch) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_fetches (run_id, fetched_at, endpoint, params_hash, cursor_in, cursor_out, truncated, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.FetchedAt.UTC(), f.Endpoint, f.ParamsHash,
		nullString(f.CursorIn), nullString(f.CursorOut), f.Truncated,
		compressPayload(f.Payload),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting raw fetch: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting raw fetch: %w", err)
	}

	return id, nil
}

// GetRawFetch returns one raw fetch with its payload decompressed.
func (s *Store) GetRawFetch(ctx context.Context, id int64) (RawFetch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, fetched_at, endpoint, params_hash, cursor_in, cursor_out, truncated, payload
		FROM raw_fetches WHERE id = ?`, id)

	var (
		f         RawFetch
		cursorIn  sql.NullString
		cursorOut sql.NullString
		blob      []byte
	)

	err := row.Scan(&f.ID, &f.RunID, &f.FetchedAt, &f.Endpoint, &f.ParamsHash, &cursorIn, &cursorOut, &f.Truncated, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return RawFetch{}, ErrNotFound
	}

	if err != nil {
		return RawFetch{}, fmt.Errorf("reading raw fetch %d: %w", id, err)
	}

	f.CursorIn = fromNullString(cursorIn)
	f.CursorOut = fromNullString(cursorOut)
	f.FetchedAt = f.FetchedAt.UTC()

	f.Payload, err = decompressPayload(blob)
	if err != nil {
		return RawFetch{}, fmt.Errorf("reading raw fetch %d: %w", id, err)
	}

	return f, nil
}

// CountRawFetches reports how many raw pages a run stored. A runID of
// zero counts across all runs.
func (s *Store) CountRawFetches(ctx context.Context, runID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM raw_fetches`
	args := []any{}

	if runID != 0 {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}

	var n int64

	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting raw fetches: %w", err)
	}

	return n, nil
}
