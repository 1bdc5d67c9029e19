package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const intervalColumns = `interval_id, snapshot_start_id, snapshot_end_id,
	start_at, end_at, new_followers_count, lost_followers_count`

// InsertInterval writes an interval and one follow event per diffed
// account in a single transaction. The counts are derived from the
// slices, never trusted from the caller.
func (s *Store) InsertInterval(ctx context.Context, iv Interval, newIDs, lostIDs []string) (int64, error) {
	var intervalID int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO intervals (snapshot_start_id, snapshot_end_id, start_at, end_at, new_followers_count, lost_followers_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			iv.SnapshotStartID, iv.SnapshotEndID, iv.StartAt.UTC(), iv.EndAt.UTC(),
			len(newIDs), len(lostIDs),
		)
		if err != nil {
			return fmt.Errorf("inserting interval: %w", err)
		}

		intervalID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("inserting interval: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO follow_events (interval_id, account_id, kind) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("inserting follow events: %w", err)
		}
		defer stmt.Close()

		for _, id := range newIDs {
			_, err = stmt.ExecContext(ctx, intervalID, id, FollowEventNew)
			if err != nil {
				return fmt.Errorf("inserting follow event for %s: %w", id, err)
			}
		}

		for _, id := range lostIDs {
			_, err = stmt.ExecContext(ctx, intervalID, id, FollowEventLost)
			if err != nil {
				return fmt.Errorf("inserting follow event for %s: %w", id, err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return intervalID, nil
}

// GetInterval returns one interval by id.
func (s *Store) GetInterval(ctx context.Context, intervalID int64) (Interval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intervalColumns+` FROM intervals WHERE interval_id = ?`, intervalID)

	iv, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interval{}, ErrNotFound
	}

	if err != nil {
		return Interval{}, fmt.Errorf("reading interval %d: %w", intervalID, err)
	}

	return iv, nil
}

// LatestInterval returns the interval with the most recent end, or
// ErrNotFound when no interval exists yet.
func (s *Store) LatestInterval(ctx context.Context) (Interval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intervalColumns+` FROM intervals ORDER BY end_at DESC, interval_id DESC LIMIT 1`)

	iv, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interval{}, ErrNotFound
	}

	if err != nil {
		return Interval{}, fmt.Errorf("reading latest interval: %w", err)
	}

	return iv, nil
}

// PreviousInterval returns the nearest interval older than intervalID,
// or ErrNotFound. Used to seed layout positions.
func (s *Store) PreviousInterval(ctx context.Context, intervalID int64) (Interval, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+intervalColumns+` FROM intervals
		WHERE interval_id < ? ORDER BY interval_id DESC LIMIT 1`, intervalID)

	iv, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interval{}, ErrNotFound
	}

	if err != nil {
		return Interval{}, fmt.Errorf("reading interval before %d: %w", intervalID, err)
	}

	return iv, nil
}

// IntervalContaining returns the first interval whose span contains t,
// or ErrNotFound.
func (s *Store) IntervalContaining(ctx context.Context, t time.Time) (Interval, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+intervalColumns+` FROM intervals
		WHERE start_at <= ? AND end_at >= ? ORDER BY interval_id LIMIT 1`, t.UTC(), t.UTC())

	iv, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interval{}, ErrNotFound
	}

	if err != nil {
		return Interval{}, fmt.Errorf("reading interval containing %s: %w", t.Format(time.RFC3339), err)
	}

	return iv, nil
}

// ListIntervals returns the most recent intervals, newest first.
func (s *Store) ListIntervals(ctx context.Context, limit int) ([]Interval, error) {
	return s.queryIntervals(ctx,
		`SELECT `+intervalColumns+` FROM intervals ORDER BY end_at DESC, interval_id DESC LIMIT ?`, limit)
}

// ListIntervalsAscending returns the oldest intervals first. Used when
// replaying history in order.
func (s *Store) ListIntervalsAscending(ctx context.Context, limit int) ([]Interval, error) {
	return s.queryIntervals(ctx,
		`SELECT `+intervalColumns+` FROM intervals ORDER BY end_at ASC, interval_id ASC LIMIT ?`, limit)
}

// IntervalsEndingBetween returns intervals whose end falls inside
// [from, to]. A zero from leaves the window unbounded on the left.
func (s *Store) IntervalsEndingBetween(ctx context.Context, from, to time.Time) ([]Interval, error) {
	if from.IsZero() {
		return s.queryIntervals(ctx, `
			SELECT `+intervalColumns+` FROM intervals
			WHERE end_at <= ? ORDER BY end_at ASC, interval_id ASC`, to.UTC())
	}

	return s.queryIntervals(ctx, `
		SELECT `+intervalColumns+` FROM intervals
		WHERE end_at >= ? AND end_at <= ? ORDER BY end_at ASC, interval_id ASC`, from.UTC(), to.UTC())
}

// IntervalEvents returns an interval's follow events. An empty kind
// returns both new and lost events.
func (s *Store) IntervalEvents(ctx context.Context, intervalID int64, kind string) ([]FollowEvent, error) {
	query := `SELECT event_id, interval_id, account_id, kind FROM follow_events WHERE interval_id = ?`
	args := []any{intervalID}

	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	query += ` ORDER BY event_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading interval %d events: %w", intervalID, err)
	}
	defer rows.Close()

	var events []FollowEvent

	for rows.Next() {
		var ev FollowEvent

		err = rows.Scan(&ev.ID, &ev.IntervalID, &ev.AccountID, &ev.Kind)
		if err != nil {
			return nil, fmt.Errorf("reading interval %d events: %w", intervalID, err)
		}

		events = append(events, ev)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading interval %d events: %w", intervalID, err)
	}

	return events, nil
}

// NewFollowerIDs returns the accounts gained in one interval.
func (s *Store) NewFollowerIDs(ctx context.Context, intervalID int64) ([]string, error) {
	events, err := s.IntervalEvents(ctx, intervalID, FollowEventNew)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.AccountID)
	}

	return ids, nil
}

// NewFollowerIDsIn returns the union of accounts gained across the
// given intervals.
func (s *Store) NewFollowerIDsIn(ctx context.Context, intervalIDs []int64) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	if len(intervalIDs) == 0 {
		return ids, nil
	}

	args := make([]any, 0, len(intervalIDs)+1)
	for _, id := range intervalIDs {
		args = append(args, id)
	}

	args = append(args, FollowEventNew)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT account_id FROM follow_events
		WHERE interval_id IN (`+placeholders(len(intervalIDs))+`) AND kind = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("reading new followers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("reading new followers: %w", err)
		}

		ids[id] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading new followers: %w", err)
	}

	return ids, nil
}

func (s *Store) queryIntervals(ctx context.Context, query string, args ...any) ([]Interval, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying intervals: %w", err)
	}
	defer rows.Close()

	var intervals []Interval

	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, fmt.Errorf("querying intervals: %w", err)
		}

		intervals = append(intervals, iv)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("querying intervals: %w", err)
	}

	return intervals, nil
}

func scanInterval(row rowScanner) (Interval, error) {
	var iv Interval

	err := row.Scan(&iv.ID, &iv.SnapshotStartID, &iv.SnapshotEndID,
		&iv.StartAt, &iv.EndAt, &iv.NewFollowersCount, &iv.LostFollowersCount)
	if err != nil {
		return Interval{}, err
	}

	iv.StartAt = iv.StartAt.UTC()
	iv.EndAt = iv.EndAt.UTC()

	return iv, nil
}
