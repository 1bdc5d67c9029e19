package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InteractionKey identifies an interaction within one interval for
// deduplication across replayed pages.
type InteractionKey struct {
	SrcID  string
	DstID  string
	Type   string
	PostID string
}

// EngagerKey identifies an engager row within one interval for
// deduplication across replayed pages.
type EngagerKey struct {
	PostID    string
	AccountID string
	Type      string
}

// InsertInteractionEvents appends interaction events in one transaction.
func (s *Store) InsertInteractionEvents(ctx context.Context, events []InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO interaction_events (interval_id, created_at, src_id, dst_id, interaction_type, post_id, raw_ref_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("inserting interaction events: %w", err)
		}
		defer stmt.Close()

		for _, ev := range events {
			var rawRef any
			if ev.RawRefID != 0 {
				rawRef = ev.RawRefID
			}

			_, err = stmt.ExecContext(ctx, ev.IntervalID, ev.CreatedAt.UTC(),
				ev.SrcID, ev.DstID, ev.Type, nullString(ev.PostID), rawRef)
			if err != nil {
				return fmt.Errorf("inserting interaction %s -> %s: %w", ev.SrcID, ev.DstID, err)
			}
		}

		return nil
	})
}

// InsertPostEngagers appends engager rows in one transaction. The
// unique constraint makes replayed pages a no-op.
func (s *Store) InsertPostEngagers(ctx context.Context, engagers []PostEngager) error {
	if len(engagers) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO post_engagers (interval_id, post_id, account_id, engager_type)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("inserting post engagers: %w", err)
		}
		defer stmt.Close()

		for _, pe := range engagers {
			_, err = stmt.ExecContext(ctx, pe.IntervalID, pe.PostID, pe.AccountID, pe.Type)
			if err != nil {
				return fmt.Errorf("inserting engager %s on %s: %w", pe.AccountID, pe.PostID, err)
			}
		}

		return nil
	})
}

// ExistingInteractionKeys loads the dedup key set for one interval so a
// rerun can skip interactions it already recorded.
func (s *Store) ExistingInteractionKeys(ctx context.Context, intervalID int64) (map[InteractionKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src_id, dst_id, interaction_type, post_id
		FROM interaction_events WHERE interval_id = ?`, intervalID)
	if err != nil {
		return nil, fmt.Errorf("reading interaction keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[InteractionKey]struct{})

	for rows.Next() {
		var (
			k      InteractionKey
			postID sql.NullString
		)

		err = rows.Scan(&k.SrcID, &k.DstID, &k.Type, &postID)
		if err != nil {
			return nil, fmt.Errorf("reading interaction keys: %w", err)
		}

		k.PostID = fromNullString(postID)
		keys[k] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading interaction keys: %w", err)
	}

	return keys, nil
}

// ExistingEngagerKeys loads the dedup key set for one interval.
func (s *Store) ExistingEngagerKeys(ctx context.Context, intervalID int64) (map[EngagerKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, account_id, engager_type
		FROM post_engagers WHERE interval_id = ?`, intervalID)
	if err != nil {
		return nil, fmt.Errorf("reading engager keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[EngagerKey]struct{})

	for rows.Next() {
		var k EngagerKey

		err = rows.Scan(&k.PostID, &k.AccountID, &k.Type)
		if err != nil {
			return nil, fmt.Errorf("reading engager keys: %w", err)
		}

		keys[k] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading engager keys: %w", err)
	}

	return keys, nil
}

// InteractionEventsBetween returns interaction events created inside
// [from, to]. A zero from leaves the window unbounded on the left.
func (s *Store) InteractionEventsBetween(ctx context.Context, from, to time.Time) ([]InteractionEvent, error) {
	query := `
		SELECT event_id, interval_id, created_at, src_id, dst_id, interaction_type, post_id, raw_ref_id
		FROM interaction_events WHERE created_at <= ?`
	args := []any{to.UTC()}

	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UTC())
	}

	query += ` ORDER BY event_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading interaction events: %w", err)
	}
	defer rows.Close()

	var events []InteractionEvent

	for rows.Next() {
		ev, err := scanInteractionEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("reading interaction events: %w", err)
		}

		events = append(events, ev)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading interaction events: %w", err)
	}

	return events, nil
}

// EngagersOnIntervalsBetween returns engager rows from intervals whose
// end falls inside [from, to]. A zero from leaves the window unbounded.
func (s *Store) EngagersOnIntervalsBetween(ctx context.Context, from, to time.Time) ([]PostEngager, error) {
	query := `
		SELECT pe.id, pe.interval_id, pe.post_id, pe.account_id, pe.engager_type
		FROM post_engagers pe
		JOIN intervals iv ON iv.interval_id = pe.interval_id
		WHERE iv.end_at <= ?`
	args := []any{to.UTC()}

	if !from.IsZero() {
		query += ` AND iv.end_at >= ?`
		args = append(args, from.UTC())
	}

	query += ` ORDER BY pe.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading post engagers: %w", err)
	}
	defer rows.Close()

	var engagers []PostEngager

	for rows.Next() {
		var pe PostEngager

		err = rows.Scan(&pe.ID, &pe.IntervalID, &pe.PostID, &pe.AccountID, &pe.Type)
		if err != nil {
			return nil, fmt.Errorf("reading post engagers: %w", err)
		}

		engagers = append(engagers, pe)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading post engagers: %w", err)
	}

	return engagers, nil
}

// EngagerIDsForPost returns the distinct accounts that engaged with a
// post across all intervals.
func (s *Store) EngagerIDsForPost(ctx context.Context, postID string) (map[string]struct{}, error) {
	return s.queryIDSet(ctx,
		`SELECT DISTINCT account_id FROM post_engagers WHERE post_id = ?`, postID)
}

// InteractionSrcIDsForPost returns the distinct source accounts of
// interaction events referencing a post.
func (s *Store) InteractionSrcIDsForPost(ctx context.Context, postID string) (map[string]struct{}, error) {
	return s.queryIDSet(ctx,
		`SELECT DISTINCT src_id FROM interaction_events WHERE post_id = ?`, postID)
}

func (s *Store) queryIDSet(ctx context.Context, query string, args ...any) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying account ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("querying account ids: %w", err)
		}

		ids[id] = struct{}{}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("querying account ids: %w", err)
	}

	return ids, nil
}

func scanInteractionEvent(row rowScanner) (InteractionEvent, error) {
	var (
		ev       InteractionEvent
		postID   sql.NullString
		rawRefID sql.NullInt64
	)

	err := row.Scan(&ev.ID, &ev.IntervalID, &ev.CreatedAt, &ev.SrcID, &ev.DstID, &ev.Type, &postID, &rawRefID)
	if err != nil {
		return InteractionEvent{}, err
	}

	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.PostID = fromNullString(postID)
	ev.RawRefID = fromNullInt(rawRefID)

	return ev, nil
}
