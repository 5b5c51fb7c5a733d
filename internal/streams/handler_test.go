package streams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
)

type recordingNotifier struct {
	mu     sync.Mutex
	tokens []string
	data   map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, tokens []string, _, _ string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, tokens...)
	n.data = data
}

type failingCreateStore struct {
	live.Store
}

func (failingCreateStore) CreateSession(context.Context, models.LiveStream) error {
	return errors.New("db down")
}

type testServer struct {
	router   *gin.Engine
	reg      *live.Registry
	coord    *live.Coordinator
	notifier *recordingNotifier
}

func newTestServer(t *testing.T, store live.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tracker := live.NewTracker(4)
	b := live.NewBroadcaster(tracker, nil, 4, nil)
	opts := live.Options{Shards: 4, PersistTimeout: time.Second, PersistRetries: -1, PersistBackoff: time.Millisecond}
	reg := live.NewRegistry(store, tracker, b, opts, nil)
	n := &recordingNotifier{}
	h := NewHandler(reg, store, n, nil)

	r := gin.New()
	r.POST("/live/start", h.Start)
	r.POST("/live/end", h.End)
	r.GET("/live/list", h.List)
	r.GET("/live/:id", h.Get)
	r.GET("/live/:id/comments", h.Comments)
	return &testServer{router: r, reg: reg, coord: live.NewCoordinator(reg, nil), notifier: n}
}

func (s *testServer) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestStartListEnd(t *testing.T) {
	srv := newTestServer(t, newSQLiteRepo(t))

	w, env := srv.do(t, http.MethodPost, "/live/start", StartRequest{HostUsername: "alice", NotifyTokens: []string{"tok-1"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var started models.LiveStream
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.NotEmpty(t, started.ID)
	assert.Equal(t, "alice", started.HostUsername)
	assert.True(t, started.IsLive)
	assert.Equal(t, []string{"tok-1"}, srv.notifier.tokens)
	assert.Equal(t, started.ID, srv.notifier.data["stream_id"])

	w, env = srv.do(t, http.MethodGet, "/live/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.LiveStream
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, started.ID, list[0].ID)

	_, err := srv.coord.RecordComment(context.Background(), started.ID, "bob", "hello")
	require.NoError(t, err)

	w, env = srv.do(t, http.MethodGet, "/live/"+started.ID+"/comments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var comments struct {
		Comments []models.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &comments))
	require.Len(t, comments.Comments, 1)
	assert.Equal(t, "hello", comments.Comments[0].Text)

	w, _ = srv.do(t, http.MethodPost, "/live/end", EndRequest{StreamID: started.ID})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = srv.do(t, http.MethodPost, "/live/end", EndRequest{StreamID: started.ID})
	assert.Equal(t, http.StatusOK, w.Code, "ending twice succeeds")

	w, env = srv.do(t, http.MethodGet, "/live/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list)

	w, env = srv.do(t, http.MethodGet, "/live/"+started.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.LiveStream
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.IsLive)
	assert.Equal(t, int64(1), got.CommentCount)
}

func TestGetFallsBackToStore(t *testing.T) {
	store := newSQLiteRepo(t)
	ended := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSession(context.Background(), models.LiveStream{
		ID: "old", HostUsername: "carol", Likes: 7, LiveSince: ended.Add(-time.Hour), EndedAt: &ended,
	}))
	srv := newTestServer(t, store)

	w, env := srv.do(t, http.MethodGet, "/live/old", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.LiveStream
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, int64(7), got.Likes)

	w, env = srv.do(t, http.MethodGet, "/live/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestHandlerErrors(t *testing.T) {
	srv := newTestServer(t, newSQLiteRepo(t))

	w, _ := srv.do(t, http.MethodPost, "/live/start", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = srv.do(t, http.MethodPost, "/live/end", EndRequest{StreamID: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = srv.do(t, http.MethodGet, "/live/x/comments?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartStoreFailure(t *testing.T) {
	srv := newTestServer(t, failingCreateStore{Store: newSQLiteRepo(t)})

	w, env := srv.do(t, http.MethodPost, "/live/start", StartRequest{HostUsername: "alice"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
	assert.Empty(t, srv.reg.ListLive())
	assert.Empty(t, srv.notifier.tokens)
}
