package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/orbit/internal/attribution"
	"github.com/fieldline/orbit/internal/frames"
	"github.com/fieldline/orbit/internal/store"
)

// baseTime anchors every fixture instant.
var baseTime = time.Date(2026, time.May, 11, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store      *store.Store
	server     *Server
	intervalID int64
	runID      int64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture seeds a store with one run, two follower snapshots and
// the interval between them, then wires a Server without a collector.
func newFixture(t *testing.T) fixture {
	t.Helper()

	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	err = s.UpsertAccounts(ctx, []store.Account{
		{ID: "ego", Handle: "ego", Name: "Ego", FollowersCount: 5000, LastSeenAt: baseTime},
		{ID: "alice", Handle: "alice", Name: "Alice", FollowersCount: 3000, LastSeenAt: baseTime},
		{ID: "bob", Handle: "bob", Name: "Bob", FollowersCount: 1500, LastSeenAt: baseTime},
		{ID: "carol", Handle: "carol", Name: "Carol", FollowersCount: 900, LastSeenAt: baseTime},
	})
	require.NoError(t, err)

	runID, err := s.CreateRun(ctx, baseTime, "1.0.0", "{}")
	require.NoError(t, err)

	err = s.FinishRun(ctx, runID, store.RunStatusCompleted, "")
	require.NoError(t, err)

	first := addSnapshot(t, s, runID, store.KindFollowers, baseTime, []string{"alice", "bob"})
	second := addSnapshot(t, s, runID, store.KindFollowers, baseTime.Add(time.Hour), []string{"alice", "bob", "carol"})
	addSnapshot(t, s, runID, store.KindFollowing, baseTime, []string{"alice"})

	intervalID, err := s.InsertInterval(ctx, store.Interval{
		SnapshotStartID: first,
		SnapshotEndID:   second,
		StartAt:         baseTime,
		EndAt:           baseTime.Add(time.Hour),
	}, []string{"carol"}, nil)
	require.NoError(t, err)

	logger := discardLogger()
	srv := New(Config{
		Store:  s,
		Frames: frames.NewBuilder(s, logger),
		Posts:  attribution.New(attribution.Config{Store: s, Logger: logger}),
		Logger: logger,
	})

	return fixture{store: s, server: srv, intervalID: intervalID, runID: runID}
}

func addSnapshot(t *testing.T, s *store.Store, runID int64, kind string, at time.Time, ids []string) int64 {
	t.Helper()

	ctx := context.Background()

	snapID, err := s.CreateSnapshot(ctx, runID, kind, at)
	require.NoError(t, err)

	members := make([]store.SnapshotMember, len(ids))
	for i, id := range ids {
		members[i] = store.SnapshotMember{AccountID: id, FollowPosition: int64(i)}
	}

	err = s.AddSnapshotMembers(ctx, snapID, kind, members)
	require.NoError(t, err)

	err = s.SetSnapshotAccountCount(ctx, snapID, int64(len(ids)))
	require.NoError(t, err)

	return snapID
}

// do issues a request against the server and decodes the JSON body
// into out when it is non-nil.
func do(t *testing.T, srv *Server, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}

	return rec
}

func TestServer_Root(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var body map[string]string

	rec := do(t, fx.server, http.MethodGet, "/", "", &body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "orbit", body["service"])
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	rec := do(t, fx.server, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, fx.server, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CollectWithoutCollector(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	rec := do(t, fx.server, http.MethodPost, "/collect", `{"username":"ego"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_ValidationErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		field  string
	}{
		{name: "runs bad limit", method: http.MethodGet, target: "/runs?limit=zero", field: "limit"},
		{name: "run bad id", method: http.MethodGet, target: "/runs/abc", field: "id"},
		{name: "snapshots bad kind", method: http.MethodGet, target: "/snapshots?kind=mutuals", field: "kind"},
		{name: "interpolate missing from", method: http.MethodGet, target: "/timeline/interpolate?to_interval_id=1&progress=0.5", field: "from_interval_id"},
		{name: "interpolate bad progress", method: http.MethodGet, target: "/timeline/interpolate?from_interval_id=1&to_interval_id=1&progress=2", field: "progress"},
		{name: "positions missing account", method: http.MethodGet, target: "/positions/history", field: "account_id"},
		{name: "build bad body", method: http.MethodPost, target: "/frames/build", body: "not json", field: "body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var body errorBody

			rec := do(t, fx.server, tc.method, tc.target, tc.body, &body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			require.Len(t, body.Fields, 1)
			assert.Equal(t, tc.field, body.Fields[0].Field)
		})
	}
}

func TestServer_NotFound(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	for _, target := range []string{
		"/runs/999",
		"/intervals/999/events",
		"/frames/999",
		"/frames/latest",
	} {
		rec := do(t, fx.server, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}
