package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stats is a row-count overview of the database plus the latest run,
// snapshot and interval when they exist.
type Stats struct {
	TotalRuns      int64
	CompletedRuns  int64
	TotalAccounts  int64
	TotalSnapshots int64
	TotalIntervals int64
	TotalPosts     int64
	TotalFrames    int64
	TotalRawPages  int64

	LatestRun      *Run
	LatestSnapshot *Snapshot
	LatestInterval *Interval
}

// Stats gathers the overview used by the stats endpoint and CLI.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM runs`, &stats.TotalRuns},
		{`SELECT COUNT(*) FROM runs WHERE status = 'completed'`, &stats.CompletedRuns},
		{`SELECT COUNT(*) FROM accounts`, &stats.TotalAccounts},
		{`SELECT COUNT(*) FROM snapshots`, &stats.TotalSnapshots},
		{`SELECT COUNT(*) FROM intervals`, &stats.TotalIntervals},
		{`SELECT COUNT(*) FROM posts`, &stats.TotalPosts},
		{`SELECT COUNT(*) FROM frames`, &stats.TotalFrames},
		{`SELECT COUNT(*) FROM raw_fetches`, &stats.TotalRawPages},
	}

	for _, c := range counts {
		err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst)
		if err != nil {
			return Stats{}, fmt.Errorf("counting rows: %w", err)
		}
	}

	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return Stats{}, err
	}

	if len(runs) > 0 {
		stats.LatestRun = &runs[0]
	}

	snap, err := s.latestSnapshotAnyKind(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Stats{}, err
	}

	if err == nil {
		stats.LatestSnapshot = &snap
	}

	iv, err := s.LatestInterval(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Stats{}, err
	}

	if err == nil {
		stats.LatestInterval = &iv
	}

	return stats, nil
}

func (s *Store) latestSnapshotAnyKind(ctx context.Context) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, run_id, captured_at, kind, account_count
		FROM snapshots ORDER BY captured_at DESC, snapshot_id DESC LIMIT 1`)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("reading latest snapshot: %w", err)
	}

	return snap, nil
}
