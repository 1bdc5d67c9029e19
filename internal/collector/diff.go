package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fieldline/orbit/internal/store"
)

// ErrKindMismatch is returned when a diff is attempted between
// snapshots of different kinds.
var ErrKindMismatch = errors.New("collector: snapshot kinds differ")

// DiffSnapshots computes the membership change from start to end and
// records it as an interval with one follow event per changed account.
// Given the same two snapshots it always produces the same diff.
func (c *Collector) DiffSnapshots(ctx context.Context, start, end store.Snapshot) (store.Interval, error) {
	if start.Kind != end.Kind {
		return store.Interval{}, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, start.Kind, end.Kind)
	}

	startIDs, err := c.store.SnapshotMemberIDs(ctx, start.ID, start.Kind)
	if err != nil {
		return store.Interval{}, err
	}

	endIDs, err := c.store.SnapshotMemberIDs(ctx, end.ID, end.Kind)
	if err != nil {
		return store.Interval{}, err
	}

	newIDs, lostIDs := diffMembers(startIDs, endIDs)

	intervalID, err := c.store.InsertInterval(ctx, store.Interval{
		SnapshotStartID: start.ID,
		SnapshotEndID:   end.ID,
		StartAt:         start.CapturedAt,
		EndAt:           end.CapturedAt,
	}, newIDs, lostIDs)
	if err != nil {
		return store.Interval{}, err
	}

	c.logger.Info("interval recorded",
		"interval_id", intervalID,
		"kind", end.Kind,
		"new", len(newIDs),
		"lost", len(lostIDs))

	return c.store.GetInterval(ctx, intervalID)
}

// diffMembers returns end minus start and start minus end, sorted so
// the recorded event order is stable.
func diffMembers(startIDs, endIDs []string) (newIDs, lostIDs []string) {
	start := make(map[string]struct{}, len(startIDs))
	for _, id := range startIDs {
		start[id] = struct{}{}
	}

	end := make(map[string]struct{}, len(endIDs))
	for _, id := range endIDs {
		end[id] = struct{}{}
	}

	for id := range end {
		if _, ok := start[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}

	for id := range start {
		if _, ok := end[id]; !ok {
			lostIDs = append(lostIDs, id)
		}
	}

	slices.Sort(newIDs)
	slices.Sort(lostIDs)

	return newIDs, lostIDs
}
