package frames

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldline/orbit/internal/store"
	"github.com/fieldline/orbit/pkg/graph"
)

// Frame returns the parsed payload stored for (interval, timeframe).
// store.ErrNotFound when no such frame has been built.
func (b *Builder) Frame(ctx context.Context, intervalID int64, timeframeDays int) (*graph.Frame, error) {
	row, err := b.store.GetFrame(ctx, intervalID, int64(timeframeDays))
	if err != nil {
		return nil, err
	}

	return parseFrame(row)
}

// Latest returns the most recently built frame for a timeframe.
// store.ErrNotFound when none has been built yet.
func (b *Builder) Latest(ctx context.Context, timeframeDays int) (*graph.Frame, error) {
	row, err := b.store.LatestFrame(ctx, int64(timeframeDays))
	if err != nil {
		return nil, err
	}

	return parseFrame(row)
}

// LatestOrEmpty returns the latest frame for a timeframe, or an empty
// frame when none exists, so the graph endpoint always has a payload.
func (b *Builder) LatestOrEmpty(ctx context.Context, timeframeDays int) (*graph.Frame, error) {
	f, err := b.Latest(ctx, timeframeDays)
	if errors.Is(err, store.ErrNotFound) {
		return graph.Empty(0, timeframeDays, time.Now().UTC()), nil
	}

	if err != nil {
		return nil, err
	}

	return f, nil
}

// Interpolate blends two stored frames of the same timeframe for
// timeline playback. store.ErrNotFound when either frame is missing.
func (b *Builder) Interpolate(ctx context.Context, fromIntervalID, toIntervalID int64, timeframeDays int, progress float64) (*graph.Interpolation, error) {
	from, err := b.Frame(ctx, fromIntervalID, timeframeDays)
	if err != nil {
		return nil, err
	}

	to, err := b.Frame(ctx, toIntervalID, timeframeDays)
	if err != nil {
		return nil, err
	}

	return graph.Interpolate(from, to, progress), nil
}

func parseFrame(row store.Frame) (*graph.Frame, error) {
	var f graph.Frame

	err := json.Unmarshal([]byte(row.FrameJSON), &f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame %d payload: %w", row.ID, err)
	}

	return &f, nil
}
