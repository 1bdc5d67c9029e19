package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// memberTable maps a snapshot kind to its membership table.
func memberTable(kind string) (string, error) {
	switch kind {
	case KindFollowers:
		return "snapshot_followers", nil
	case KindFollowing:
		return "snapshot_following", nil
	default:
		return "", fmt.Errorf("unknown snapshot kind %q", kind)
	}
}

// CreateSnapshot inserts an empty snapshot and returns its id. Members
// are added page by page afterwards.
func (s *Store) CreateSnapshot(ctx context.Context, runID int64, kind string, capturedAt time.Time) (int64, error) {
	_, err := memberTable(kind)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, captured_at, kind, account_count)
		VALUES (?, ?, ?, 0)`,
		runID, capturedAt.UTC(), kind,
	)
	if err != nil {
		return 0, fmt.Errorf("creating %s snapshot: %w", kind, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating %s snapshot: %w", kind, err)
	}

	return id, nil
}

// AddSnapshotMembers inserts one page of membership rows in a single
// transaction. Duplicate accounts within a snapshot are ignored, which
// makes replayed pages safe.
func (s *Store) AddSnapshotMembers(ctx context.Context, snapshotID int64, kind string, members []SnapshotMember) error {
	if len(members) == 0 {
		return nil
	}

	table, err := memberTable(kind)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO `+table+` (snapshot_id, account_id, follow_position)
			VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("adding snapshot members: %w", err)
		}
		defer stmt.Close()

		for _, m := range members {
			_, err = stmt.ExecContext(ctx, snapshotID, m.AccountID, m.FollowPosition)
			if err != nil {
				return fmt.Errorf("adding snapshot member %s: %w", m.AccountID, err)
			}
		}

		return nil
	})
}

// SetSnapshotAccountCount finalizes a snapshot after its last page.
func (s *Store) SetSnapshotAccountCount(ctx context.Context, snapshotID int64, count int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET account_count = ? WHERE snapshot_id = ?`, count, snapshotID)
	if err != nil {
		return fmt.Errorf("updating snapshot %d count: %w", snapshotID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating snapshot %d count: %w", snapshotID, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetSnapshot returns one snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, snapshotID int64) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, run_id, captured_at, kind, account_count
		FROM snapshots WHERE snapshot_id = ?`, snapshotID)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot %d: %w", snapshotID, err)
	}

	return snap, nil
}

// LatestSnapshot returns the most recent snapshot of the given kind,
// or ErrNotFound when none exists yet.
func (s *Store) LatestSnapshot(ctx context.Context, kind string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, run_id, captured_at, kind, account_count
		FROM snapshots WHERE kind = ?
		ORDER BY captured_at DESC, snapshot_id DESC LIMIT 1`, kind)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("reading latest %s snapshot: %w", kind, err)
	}

	return snap, nil
}

// ListSnapshots returns the most recent snapshots, newest first. An
// empty kind lists both kinds.
func (s *Store) ListSnapshots(ctx context.Context, kind string, limit int) ([]Snapshot, error) {
	query := `SELECT snapshot_id, run_id, captured_at, kind, account_count FROM snapshots`
	args := []any{}

	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}

	query += ` ORDER BY captured_at DESC, snapshot_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}

		snaps = append(snaps, snap)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	return snaps, nil
}

// SnapshotMemberIDs returns a snapshot's member account ids ordered by
// follow position, newest first.
func (s *Store) SnapshotMemberIDs(ctx context.Context, snapshotID int64, kind string) ([]string, error) {
	table, err := memberTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id FROM `+table+` WHERE snapshot_id = ? ORDER BY follow_position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %d members: %w", snapshotID, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("reading snapshot %d members: %w", snapshotID, err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %d members: %w", snapshotID, err)
	}

	return ids, nil
}

// MembershipUpTo returns the union of all member account ids over
// snapshots of the given kind captured at or before cutoff. This is the
// cumulative node set used by the frame builder.
func (s *Store) MembershipUpTo(ctx context.Context, kind string, cutoff time.Time) (map[string]struct{}, error) {
	table, err := memberTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT m.account_id
		FROM `+table+` m
		JOIN snapshots s ON s.snapshot_id = m.snapshot_id
		WHERE s.kind = ? AND s.captured_at <= ?`, kind, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("reading %s membership: %w", kind, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("reading %s membership: %w", kind, err)
		}

		ids[id] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading %s membership: %w", kind, err)
	}

	return ids, nil
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot

	err := row.Scan(&snap.ID, &snap.RunID, &snap.CapturedAt, &snap.Kind, &snap.AccountCount)
	if err != nil {
		return Snapshot{}, err
	}

	snap.CapturedAt = snap.CapturedAt.UTC()

	return snap, nil
}
