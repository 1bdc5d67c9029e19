package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRun inserts a run in the running state with a frozen config
// snapshot and returns its id.
func (s *Store) CreateRun(ctx context.Context, startedAt time.Time, configVersion, configJSON string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, status, config_version, config_json)
		VALUES (?, ?, ?, ?)`,
		startedAt.UTC(), RunStatusRunning, configVersion, nullString(configJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}

	return id, nil
}

// FinishRun transitions a run to its terminal status and records notes.
func (s *Store) FinishRun(ctx context.Context, runID int64, status, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, notes = ?, finished_at = ? WHERE run_id = ?`,
		status, nullString(notes), time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, status, notes, config_version, config_json
		FROM runs WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}

	if err != nil {
		return Run{}, fmt.Errorf("reading run %d: %w", runID, err)
	}

	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, status, notes, config_version, config_json
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}

		runs = append(runs, r)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r          Run
		finishedAt sql.NullTime
		notes      sql.NullString
		configJSON sql.NullString
	)

	err := row.Scan(&r.ID, &r.StartedAt, &finishedAt, &r.Status, &notes, &r.ConfigVersion, &configJSON)
	if err != nil {
		return Run{}, err
	}

	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = fromNullTime(finishedAt)
	r.Notes = fromNullString(notes)
	r.ConfigJSON = fromNullString(configJSON)

	return r, nil
}
