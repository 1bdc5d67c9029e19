package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

const frameColumns = `id, interval_id, timeframe_window, frame_json,
	node_count, edge_count, build_meta_json, created_at`

// FrameData carries everything persisted for one built frame.
type FrameData struct {
	Frame       Frame
	Edges       []Edge
	Communities []Community
	Positions   []Position
}

// SaveFrame replaces the derived rows for (interval, timeframe) and
// inserts the new frame, all in one transaction. Edges, communities and
// positions are interval-scoped; frames for other timeframes of the same
// interval survive. Every position is also appended to the history table
// so timeline playback can be analyzed after rebuilds.
func (s *Store) SaveFrame(ctx context.Context, data FrameData) (int64, error) {
	var frameID int64

	intervalID := data.Frame.IntervalID
	now := time.Now().UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, del := range []string{
			`DELETE FROM edges WHERE interval_id = ?`,
			`DELETE FROM communities WHERE interval_id = ?`,
			`DELETE FROM positions WHERE interval_id = ?`,
		} {
			_, err := tx.ExecContext(ctx, del, intervalID)
			if err != nil {
				return fmt.Errorf("clearing derived rows for interval %d: %w", intervalID, err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`DELETE FROM frames WHERE interval_id = ? AND timeframe_window = ?`,
			intervalID, data.Frame.TimeframeWindow)
		if err != nil {
			return fmt.Errorf("clearing frame for interval %d: %w", intervalID, err)
		}

		err = insertFrameEdges(ctx, tx, data.Edges)
		if err != nil {
			return err
		}

		err = insertFrameCommunities(ctx, tx, data.Communities)
		if err != nil {
			return err
		}

		err = insertFramePositions(ctx, tx, data.Positions, now)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO frames (interval_id, timeframe_window, frame_json, node_count, edge_count, build_meta_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			intervalID, data.Frame.TimeframeWindow, data.Frame.FrameJSON,
			data.Frame.NodeCount, data.Frame.EdgeCount,
			nullString(data.Frame.BuildMetaJSON), now,
		)
		if err != nil {
			return fmt.Errorf("inserting frame for interval %d: %w", intervalID, err)
		}

		frameID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("inserting frame for interval %d: %w", intervalID, err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return frameID, nil
}

func insertFrameEdges(ctx context.Context, tx *sql.Tx, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (interval_id, src_id, dst_id, edge_type, weight, meta_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inserting edges: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		_, err = stmt.ExecContext(ctx, e.IntervalID, e.SrcID, e.DstID, e.Type, e.Weight, nullString(e.MetaJSON))
		if err != nil {
			return fmt.Errorf("inserting edge %s -> %s: %w", e.SrcID, e.DstID, err)
		}
	}

	return nil
}

func insertFrameCommunities(ctx context.Context, tx *sql.Tx, communities []Community) error {
	if len(communities) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO communities (interval_id, account_id, community_id, confidence)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inserting communities: %w", err)
	}
	defer stmt.Close()

	for _, c := range communities {
		confidence := c.Confidence
		if confidence == 0 {
			confidence = 1.0
		}

		_, err = stmt.ExecContext(ctx, c.IntervalID, c.AccountID, c.CommunityID, confidence)
		if err != nil {
			return fmt.Errorf("inserting community for %s: %w", c.AccountID, err)
		}
	}

	return nil
}

func insertFramePositions(ctx context.Context, tx *sql.Tx, positions []Position, recordedAt time.Time) error {
	if len(positions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (interval_id, account_id, x, y, z)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inserting positions: %w", err)
	}
	defer stmt.Close()

	history, err := tx.PrepareContext(ctx, `
		INSERT INTO position_history (interval_id, account_id, x, y, z, recorded_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("inserting position history: %w", err)
	}
	defer history.Close()

	for _, p := range positions {
		_, err = stmt.ExecContext(ctx, p.IntervalID, p.AccountID, p.X, p.Y, p.Z)
		if err != nil {
			return fmt.Errorf("inserting position for %s: %w", p.AccountID, err)
		}

		_, err = history.ExecContext(ctx, p.IntervalID, p.AccountID, p.X, p.Y, p.Z, recordedAt, PositionSourceFrameBuild)
		if err != nil {
			return fmt.Errorf("inserting position history for %s: %w", p.AccountID, err)
		}
	}

	return nil
}

// GetFrame returns the frame for (interval, timeframe).
func (s *Store) GetFrame(ctx context.Context, intervalID int64, timeframeWindow int64) (Frame, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+frameColumns+` FROM frames
		WHERE interval_id = ? AND timeframe_window = ?`, intervalID, timeframeWindow)

	f, err := scanFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Frame{}, ErrNotFound
	}

	if err != nil {
		return Frame{}, fmt.Errorf("reading frame for interval %d: %w", intervalID, err)
	}

	return f, nil
}

// LatestFrame returns the most recently built frame for a timeframe, or
// ErrNotFound when none has been built yet.
func (s *Store) LatestFrame(ctx context.Context, timeframeWindow int64) (Frame, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+frameColumns+` FROM frames
		WHERE timeframe_window = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, timeframeWindow)

	f, err := scanFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Frame{}, ErrNotFound
	}

	if err != nil {
		return Frame{}, fmt.Errorf("reading latest frame: %w", err)
	}

	return f, nil
}

// ListFrames returns frame metadata for a timeframe, newest build
// first. Payloads are omitted; fetch them with GetFrame.
func (s *Store) ListFrames(ctx context.Context, timeframeWindow int64, limit int) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, interval_id, timeframe_window, node_count, edge_count, created_at
		FROM frames WHERE timeframe_window = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, timeframeWindow, limit)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame

	for rows.Next() {
		var f Frame

		err = rows.Scan(&f.ID, &f.IntervalID, &f.TimeframeWindow, &f.NodeCount, &f.EdgeCount, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("listing frames: %w", err)
		}

		f.CreatedAt = f.CreatedAt.UTC()
		frames = append(frames, f)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}

	return frames, nil
}

// TimelineFrame is frame metadata joined with its interval end for
// ordered playback.
type TimelineFrame struct {
	Frame
	IntervalEndAt time.Time
}

// ListTimelineFrames returns frame metadata for a timeframe ordered by
// interval end ascending, the playback order.
func (s *Store) ListTimelineFrames(ctx context.Context, timeframeWindow int64, limit int) ([]TimelineFrame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.interval_id, f.timeframe_window, f.node_count, f.edge_count, f.created_at, iv.end_at
		FROM frames f
		JOIN intervals iv ON iv.interval_id = f.interval_id
		WHERE f.timeframe_window = ?
		ORDER BY iv.end_at ASC, f.id ASC LIMIT ?`, timeframeWindow, limit)
	if err != nil {
		return nil, fmt.Errorf("listing timeline frames: %w", err)
	}
	defer rows.Close()

	var frames []TimelineFrame

	for rows.Next() {
		var f TimelineFrame

		err = rows.Scan(&f.ID, &f.IntervalID, &f.TimeframeWindow, &f.NodeCount, &f.EdgeCount, &f.CreatedAt, &f.IntervalEndAt)
		if err != nil {
			return nil, fmt.Errorf("listing timeline frames: %w", err)
		}

		f.CreatedAt = f.CreatedAt.UTC()
		f.IntervalEndAt = f.IntervalEndAt.UTC()
		frames = append(frames, f)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing timeline frames: %w", err)
	}

	return frames, nil
}

// PositionsForInterval returns the laid-out positions of one interval
// keyed by account. Used to seed the next layout.
func (s *Store) PositionsForInterval(ctx context.Context, intervalID int64) (map[string]Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT interval_id, account_id, x, y, z
		FROM positions WHERE interval_id = ?`, intervalID)
	if err != nil {
		return nil, fmt.Errorf("reading positions for interval %d: %w", intervalID, err)
	}
	defer rows.Close()

	positions := make(map[string]Position)

	for rows.Next() {
		var p Position

		err = rows.Scan(&p.IntervalID, &p.AccountID, &p.X, &p.Y, &p.Z)
		if err != nil {
			return nil, fmt.Errorf("reading positions for interval %d: %w", intervalID, err)
		}

		positions[p.AccountID] = p
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading positions for interval %d: %w", intervalID, err)
	}

	return positions, nil
}

// PositionHistoryForAccount returns an account's recorded positions,
// most recent first.
func (s *Store) PositionHistoryForAccount(ctx context.Context, accountID string, limit int) ([]PositionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT interval_id, account_id, x, y, z, recorded_at, source
		FROM position_history WHERE account_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading position history for %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []PositionEntry

	for rows.Next() {
		var (
			e      PositionEntry
			source sql.NullString
		)

		err = rows.Scan(&e.IntervalID, &e.AccountID, &e.X, &e.Y, &e.Z, &e.RecordedAt, &source)
		if err != nil {
			return nil, fmt.Errorf("reading position history for %s: %w", accountID, err)
		}

		e.RecordedAt = e.RecordedAt.UTC()
		e.Source = fromNullString(source)
		entries = append(entries, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading position history for %s: %w", accountID, err)
	}

	return entries, nil
}

// CommunityIDsForAccounts returns the sorted distinct community ids of
// the given accounts at one interval. Accounts missing from that
// interval's communities contribute nothing.
func (s *Store) CommunityIDsForAccounts(ctx context.Context, intervalID int64, accountIDs []string) ([]int64, error) {
	if intervalID == 0 || len(accountIDs) == 0 {
		return nil, nil
	}

	seen := make(map[int64]struct{})

	for _, part := range chunk(accountIDs, maxSQLParams) {
		args := make([]any, 0, len(part)+1)
		args = append(args, intervalID)

		for _, id := range part {
			args = append(args, id)
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT DISTINCT community_id FROM communities
			WHERE interval_id = ? AND account_id IN (`+placeholders(len(part))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("reading community ids: %w", err)
		}

		for rows.Next() {
			var id int64

			err = rows.Scan(&id)
			if err != nil {
				rows.Close()

				return nil, fmt.Errorf("reading community ids: %w", err)
			}

			seen[id] = struct{}{}
		}

		err = rows.Err()
		rows.Close()

		if err != nil {
			return nil, fmt.Errorf("reading community ids: %w", err)
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids, nil
}

func scanFrame(row rowScanner) (Frame, error) {
	var (
		f             Frame
		buildMetaJSON sql.NullString
	)

	err := row.Scan(&f.ID, &f.IntervalID, &f.TimeframeWindow, &f.FrameJSON,
		&f.NodeCount, &f.EdgeCount, &buildMetaJSON, &f.CreatedAt)
	if err != nil {
		return Frame{}, err
	}

	f.BuildMetaJSON = fromNullString(buildMetaJSON)
	f.CreatedAt = f.CreatedAt.UTC()

	return f, nil
}
