package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fieldline/orbit/internal/attribution"
)

// Tool name constants.
const (
	ToolNameGraph = "graph_get"
	ToolNamePosts = "posts_attribution"
	ToolNameRuns  = "runs_list"
)

// Tool descriptions shown to agents during discovery.
const (
	graphToolDescription = "Fetch the rendered social graph frame for an interval. " +
		"Returns nodes with 3-D positions, communities, and weighted edges. " +
		"Omit interval_id for the latest frame; an empty frame means nothing has been built yet."

	postsToolDescription = "Score recent posts against follower growth. " +
		"Each result buckets attributed new followers into high/medium/low confidence with evidence."

	runsToolDescription = "List collection runs, newest first, with status and config version."
)

// Listing bounds.
const (
	defaultRunsLimit  = 20
	defaultPostsLimit = 20
	maxListLimit      = 200
)

// Sentinel errors for tool input validation.
var (
	// ErrNegativeInterval indicates a negative interval_id parameter.
	ErrNegativeInterval = errors.New("interval_id must be non-negative")
	// ErrNegativeTimeframe indicates a negative timeframe_days parameter.
	ErrNegativeTimeframe = errors.New("timeframe_days must be non-negative")
	// ErrNegativeLimit indicates a negative limit parameter.
	ErrNegativeLimit = errors.New("limit must be non-negative")
)

// GraphInput is the input schema for the graph_get tool.
type GraphInput struct {
	IntervalID    int64 `json:"interval_id,omitempty"    jsonschema:"interval to fetch (0 or omitted = latest built frame)"`
	TimeframeDays int   `json:"timeframe_days,omitempty" jsonschema:"timeframe window in days the frame was built with (0 = all history)"`
}

// PostsInput is the input schema for the posts_attribution tool.
type PostsInput struct {
	TimeframeDays int  `json:"timeframe_days,omitempty" jsonschema:"only score posts authored within the last N days (0 = all)"`
	Limit         int  `json:"limit,omitempty"          jsonschema:"maximum posts to score, newest first (default 20)"`
	Rebuild       bool `json:"rebuild,omitempty"        jsonschema:"discard cached attributions and recompute"`
}

// RunsInput is the input schema for the runs_list tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum runs to return, newest first (default 20)"`
}

// runSummary is one row of the runs_list result.
type runSummary struct {
	RunID         int64      `json:"run_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	ConfigVersion string     `json:"config_version"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// clampLimit applies the default and upper bound for listing tools.
func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}

	if limit > maxListLimit {
		return maxListLimit
	}

	return limit
}

// handleGraph processes graph_get tool calls.
func (s *Server) handleGraph(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input GraphInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.IntervalID < 0 {
		return errorResult(ErrNegativeInterval)
	}

	if input.TimeframeDays < 0 {
		return errorResult(ErrNegativeTimeframe)
	}

	if input.IntervalID == 0 {
		frame, err := s.frames.LatestOrEmpty(ctx, input.TimeframeDays)
		if err != nil {
			return errorResult(err)
		}

		return jsonResult(frame)
	}

	frame, err := s.frames.Frame(ctx, input.IntervalID, input.TimeframeDays)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(frame)
}

// handlePosts processes posts_attribution tool calls.
func (s *Server) handlePosts(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input PostsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.TimeframeDays < 0 {
		return errorResult(ErrNegativeTimeframe)
	}

	if input.Limit < 0 {
		return errorResult(ErrNegativeLimit)
	}

	results, err := s.posts.Build(ctx, attribution.Request{
		TimeframeDays: input.TimeframeDays,
		Limit:         clampLimit(input.Limit, defaultPostsLimit),
		Rebuild:       input.Rebuild,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(results)
}

// handleRuns processes runs_list tool calls.
func (s *Server) handleRuns(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input RunsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Limit < 0 {
		return errorResult(ErrNegativeLimit)
	}

	runs, err := s.store.ListRuns(ctx, clampLimit(input.Limit, defaultRunsLimit))
	if err != nil {
		return errorResult(err)
	}

	summaries := make([]runSummary, 0, len(runs))

	for _, run := range runs {
		summary := runSummary{
			RunID:         run.ID,
			StartedAt:     run.StartedAt,
			Status:        run.Status,
			Notes:         run.Notes,
			ConfigVersion: run.ConfigVersion,
		}

		if !run.FinishedAt.IsZero() {
			finished := run.FinishedAt
			summary.FinishedAt = &finished
		}

		summaries = append(summaries, summary)
	}

	return jsonResult(summaries)
}
