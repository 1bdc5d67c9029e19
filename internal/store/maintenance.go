package store

import (
	"context"
	"fmt"
	"time"
)

// staleRunNotes marks runs that were still running when the process
// restarted.
const staleRunNotes = "stale at startup"

// MaintenanceReport summarizes what startup maintenance cleaned up.
type MaintenanceReport struct {
	StaleRuns      int64
	EmptySnapshots int64
}

// Maintain repairs state left behind by a crashed process: runs still
// marked running become failed, and snapshots that never received any
// members are deleted together with their membership rows.
func (s *Store) Maintain(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, notes = ?, finished_at = ?
		WHERE status = ?`,
		RunStatusFailed, staleRunNotes, time.Now().UTC(), RunStatusRunning,
	)
	if err != nil {
		return report, fmt.Errorf("failing stale runs: %w", err)
	}

	report.StaleRuns, err = res.RowsAffected()
	if err != nil {
		return report, fmt.Errorf("failing stale runs: %w", err)
	}

	for _, table := range []string{"snapshot_followers", "snapshot_following"} {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM `+table+` WHERE snapshot_id IN (
				SELECT snapshot_id FROM snapshots WHERE account_count = 0
			)`)
		if err != nil {
			return report, fmt.Errorf("deleting empty snapshot members: %w", err)
		}
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE account_count = 0`)
	if err != nil {
		return report, fmt.Errorf("deleting empty snapshots: %w", err)
	}

	report.EmptySnapshots, err = res.RowsAffected()
	if err != nil {
		return report, fmt.Errorf("deleting empty snapshots: %w", err)
	}

	return report, nil
}
