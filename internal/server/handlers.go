package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/collector"
	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/store"
)

// collectBody is the POST /collect request.
type collectBody struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	MaxPages int    `json:"max_pages"`
}

// runView is the JSON shape of a run.
type runView struct {
	RunID         int64      `json:"run_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	ConfigVersion string     `json:"config_version"`
}

// snapshotView is the JSON shape of a snapshot.
type snapshotView struct {
	SnapshotID   int64     `json:"snapshot_id"`
	RunID        int64     `json:"run_id"`
	CapturedAt   time.Time `json:"captured_at"`
	Kind         string    `json:"kind"`
	AccountCount int64     `json:"account_count"`
}

// intervalView is the JSON shape of an interval.
type intervalView struct {
	IntervalID         int64     `json:"interval_id"`
	SnapshotStartID    int64     `json:"snapshot_start_id"`
	SnapshotEndID      int64     `json:"snapshot_end_id"`
	StartAt            time.Time `json:"start_at"`
	EndAt              time.Time `json:"end_at"`
	NewFollowersCount  int64     `json:"new_followers_count"`
	LostFollowersCount int64     `json:"lost_followers_count"`
}

// eventView is the JSON shape of a follow event.
type eventView struct {
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
}

// accountView is the JSON shape of an account listing row.
type accountView struct {
	ID             string    `json:"id"`
	Handle         string    `json:"handle,omitempty"`
	Name           string    `json:"name,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	FollowersCount int64     `json:"followers_count"`
	FollowingCount int64     `json:"following_count"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// frameView is the JSON shape of frame metadata.
type frameView struct {
	FrameID         int64     `json:"frame_id"`
	IntervalID      int64     `json:"interval_id"`
	TimeframeWindow int64     `json:"timeframe_window"`
	NodeCount       int64     `json:"node_count"`
	EdgeCount       int64     `json:"edge_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// timelineFrameView adds the playback ordering key.
type timelineFrameView struct {
	frameView

	IntervalEndAt time.Time `json:"interval_end_at"`
}

// statsView is the JSON shape of the stats overview.
type statsView struct {
	TotalRuns      int64 `json:"total_runs"`
	CompletedRuns  int64 `json:"completed_runs"`
	TotalAccounts  int64 `json:"total_accounts"`
	TotalSnapshots int64 `json:"total_snapshots"`
	TotalIntervals int64 `json:"total_intervals"`
	TotalPosts     int64 `json:"total_posts"`
	TotalFrames    int64 `json:"total_frames"`
	TotalRawPages  int64 `json:"total_raw_pages"`

	LatestRun      *runView      `json:"latest_run,omitempty"`
	LatestSnapshot *snapshotView `json:"latest_snapshot,omitempty"`
	LatestInterval *intervalView `json:"latest_interval,omitempty"`
}

// positionView is one position history entry.
type positionView struct {
	IntervalID int64     `json:"interval_id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source,omitempty"`
}

// buildBody is the POST /frames/build request.
type buildBody struct {
	IntervalID    int64  `json:"interval_id"`
	TimeframeDays int    `json:"timeframe_days"`
	EgoID         string `json:"ego_id"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.collector == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "no upstream credential configured"})

		return
	}

	var body collectBody

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		s.writeError(w, r, fieldErr("body", "must be a JSON object"))

		return
	}

	if body.Username == "" && body.UserID == "" {
		s.writeError(w, r, fieldErr("username", "one of username and user_id is required"))

		return
	}

	if body.MaxPages < 0 {
		s.writeError(w, r, fieldErr("max_pages", "must be a non-negative integer"))

		return
	}

	result, err := s.collector.Collect(r.Context(), collector.Request{
		Handle:   body.Username,
		UserID:   body.UserID,
		MaxPages: body.MaxPages,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := pathID(p, "id")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toRunView(run))
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != store.KindFollowers && kind != store.KindFollowing {
		s.writeError(w, r, fieldErr("kind", "must be followers or following"))

		return
	}

	snaps, err := s.store.ListSnapshots(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]snapshotView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, toSnapshotView(snap))
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	intervals, err := s.store.ListIntervals(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]intervalView, 0, len(intervals))
	for _, iv := range intervals {
		views = append(views, toIntervalView(iv))
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleIntervalEvents(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := pathID(p, "id")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != store.FollowEventNew && kind != store.FollowEventLost {
		s.writeError(w, r, fieldErr("kind", "must be new or lost"))

		return
	}

	// A bad id and an interval without events look the same to the
	// events query; resolve the interval first so unknown ids 404.
	_, err = s.store.GetInterval(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	events, err := s.store.IntervalEvents(r.Context(), id, kind)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{AccountID: ev.AccountID, Kind: ev.Kind})
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	accounts, err := s.store.ListAccounts(r.Context(), limit, r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID:             a.ID,
			Handle:         a.Handle,
			Name:           a.Name,
			AvatarURL:      a.AvatarURL,
			Bio:            a.Bio,
			FollowersCount: a.FollowersCount,
			FollowingCount: a.FollowingCount,
			LastSeenAt:     a.LastSeenAt,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	view := statsView{
		TotalRuns:      stats.TotalRuns,
		CompletedRuns:  stats.CompletedRuns,
		TotalAccounts:  stats.TotalAccounts,
		TotalSnapshots: stats.TotalSnapshots,
		TotalIntervals: stats.TotalIntervals,
		TotalPosts:     stats.TotalPosts,
		TotalFrames:    stats.TotalFrames,
		TotalRawPages:  stats.TotalRawPages,
	}

	if stats.LatestRun != nil {
		v := toRunView(*stats.LatestRun)
		view.LatestRun = &v
	}

	if stats.LatestSnapshot != nil {
		v := toSnapshotView(*stats.LatestSnapshot)
		view.LatestSnapshot = &v
	}

	if stats.LatestInterval != nil {
		v := toIntervalView(*stats.LatestInterval)
		view.LatestInterval = &v
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	rows, err := s.store.ListFrames(r.Context(), int64(timeframe), limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]frameView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toFrameView(row))
	}

	writeJSON(w, http.StatusOK, views)
}

// handleFrame serves GET /frames/latest and GET /frames/{interval_id};
// httprouter cannot hold both patterns, so "latest" is dispatched here.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	if p.ByName("interval_id") == "latest" {
		frame, latestErr := s.frames.Latest(r.Context(), timeframe)
		if latestErr != nil {
			s.writeError(w, r, latestErr)

			return
		}

		writeJSON(w, http.StatusOK, frame)

		return
	}

	id, err := pathID(p, "interval_id")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	frame, err := s.frames.Frame(r.Context(), id, timeframe)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, frame)
}

// handleFrameBuild serves POST /frames/build. Other POST /frames/*
// paths 404.
func (s *Server) handleFrameBuild(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if p.ByName("interval_id") != "build" {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})

		return
	}

	var body buildBody

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		s.writeError(w, r, fieldErr("body", "must be a JSON object"))

		return
	}

	if body.IntervalID < 0 {
		s.writeError(w, r, fieldErr("interval_id", "must be a non-negative integer"))

		return
	}

	if body.TimeframeDays < 0 {
		s.writeError(w, r, fieldErr("timeframe_days", "must be a non-negative integer"))

		return
	}

	result, err := s.frames.Build(r.Context(), frames.BuildRequest{
		IntervalID:    body.IntervalID,
		TimeframeDays: body.TimeframeDays,
		EgoID:         body.EgoID,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toFrameView(result.Row))
}

// handleGraph serves the latest frame, or an empty structure when none
// has been built yet.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	frame, err := s.frames.LatestOrEmpty(r.Context(), timeframe)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, frame)
}

func (s *Server) handleTimelineFrames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	rows, err := s.store.ListTimelineFrames(r.Context(), int64(timeframe), limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]timelineFrameView, 0, len(rows))
	for _, row := range rows {
		views = append(views, timelineFrameView{
			frameView:     toFrameView(row.Frame),
			IntervalEndAt: row.IntervalEndAt,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleInterpolate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fromID, err := int64Query(r, "from_interval_id")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	toID, err := int64Query(r, "to_interval_id")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	progress, err := progressQuery(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	interp, err := s.frames.Interpolate(r.Context(), fromID, toID, timeframe, progress)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, interp)
}

func (s *Server) handlePositionHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		s.writeError(w, r, fieldErr("account_id", "is required"))

		return
	}

	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	entries, err := s.store.PositionHistoryForAccount(r.Context(), accountID, limit)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	views := make([]positionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, positionView{
			IntervalID: e.IntervalID,
			X:          e.X,
			Y:          e.Y,
			Z:          e.Z,
			RecordedAt: e.RecordedAt,
			Source:     e.Source,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"entries":    views,
	})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	timeframe, err := intQuery(r, "timeframe_window")
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	results, err := s.posts.Build(r.Context(), attribution.Request{
		TimeframeDays: timeframe,
		Limit:         limit,
	})
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, results)
}

// progressQuery parses ?progress= into [0,1].
func progressQuery(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("progress")
	if raw == "" {
		return 0, fieldErr("progress", "is required")
	}

	var progress float64

	err := json.Unmarshal([]byte(raw), &progress)
	if err != nil || progress < 0 || progress > 1 {
		return 0, fieldErr("progress", "must be a number between 0 and 1")
	}

	return progress, nil
}

func toRunView(run store.Run) runView {
	view := runView{
		RunID:         run.ID,
		StartedAt:     run.StartedAt,
		Status:        run.Status,
		Notes:         run.Notes,
		ConfigVersion: run.ConfigVersion,
	}

	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		view.FinishedAt = &finished
	}

	return view
}

func toSnapshotView(snap store.Snapshot) snapshotView {
	return snapshotView{
		SnapshotID:   snap.ID,
		RunID:        snap.RunID,
		CapturedAt:   snap.CapturedAt,
		Kind:         snap.Kind,
		AccountCount: snap.AccountCount,
	}
}

func toIntervalView(iv store.Interval) intervalView {
	return intervalView{
		IntervalID:         iv.ID,
		SnapshotStartID:    iv.SnapshotStartID,
		SnapshotEndID:      iv.SnapshotEndID,
		StartAt:            iv.StartAt,
		EndAt:              iv.EndAt,
		NewFollowersCount:  iv.NewFollowersCount,
		LostFollowersCount: iv.LostFollowersCount,
	}
}

func toFrameView(row store.Frame) frameView {
	return frameView{
		FrameID:         row.ID,
		IntervalID:      row.IntervalID,
		TimeframeWindow: row.TimeframeWindow,
		NodeCount:       row.NodeCount,
		EdgeCount:       row.EdgeCount,
		CreatedAt:       row.CreatedAt,
	}
}
