package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c := New(Config{
		BearerToken: "token-a",
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		RPS:         1000,
		Burst:       100,
		PageSize:    2,
		Logger:      discardLogger(),
	})
	c.primary.backoff = time.Millisecond

	return c
}

const aliceInfoBody = `{"data":{"id":"u1","userName":"alice","name":"Alice",
	"profilePicture":"https://img/a.png","description":"writes things",
	"followers":1200,"following":310,"statusesCount":87,
	"createdAt":"Thu Dec 13 08:41:26 +0000 2007"}}`

func TestClient_UserByHandle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-a", r.Header.Get("Authorization"))
		assert.Equal(t, "/"+EndpointUserInfo, r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("userName"))

		_, _ = w.Write([]byte(aliceInfoBody))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	user, err := c.UserByHandle(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "alice", user.Handle)
	assert.Equal(t, "https://img/a.png", user.AvatarURL)
	assert.Equal(t, int64(1200), user.FollowersCount)
	assert.Equal(t, 2007, user.CreatedAt.Year())
}

func TestClient_UserByHandle_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	_, err := c.UserByHandle(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte(aliceInfoBody))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	user, err := c.UserByHandle(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "u1", user.ID)
}

func TestClient_TransientErrorAfterExhaustion(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	_, err := c.UserByHandle(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, int32(maxAttempts), hits.Load())

	var transient *TransientError

	assert.ErrorAs(t, err, &transient)
}

func TestClient_HardErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"protected account"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	_, err := c.UserByHandle(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	var hard *HardError

	require.ErrorAs(t, err, &hard)
	assert.Equal(t, http.StatusForbidden, hard.Status)
	assert.Contains(t, hard.Body, "protected account")
	assert.True(t, IsSkippable(err))
}

func TestIsSkippable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSkippable(&HardError{Status: http.StatusNotFound}))
	assert.True(t, IsSkippable(&HardError{Status: http.StatusForbidden}))
	assert.False(t, IsSkippable(&HardError{Status: http.StatusUnauthorized}))
	assert.False(t, IsSkippable(&TransientError{Err: errors.New("boom")}))
	assert.False(t, IsSkippable(nil))
}

func TestParamsHash_Stable(t *testing.T) {
	t.Parallel()

	a := url.Values{}
	a.Set("userName", "alice")
	a.Set("pageSize", "200")

	b := url.Values{}
	b.Set("pageSize", "200")
	b.Set("userName", "alice")

	assert.Equal(t, paramsHash(a), paramsHash(b))
	assert.Len(t, paramsHash(a), 16)

	b.Set("cursor", "next")
	assert.NotEqual(t, paramsHash(a), paramsHash(b))
}
