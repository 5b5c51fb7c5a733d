package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/queue"
)

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, "", nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, queue.Key(job.Type), nil
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

type handlerFunc func(ctx context.Context, job *queue.Job) error

func (f handlerFunc) Process(ctx context.Context, job *queue.Job) error { return f(ctx, job) }

func mustJob(t *testing.T, typ queue.JobType, payload any) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(typ, payload)
	require.NoError(t, err)
	return job
}

func TestRunnerRoutesAndRetries(t *testing.T) {
	ok := mustJob(t, queue.JobTypeLiveStarted, queue.LiveStartedPayload{Tokens: []string{"a"}})
	bad := mustJob(t, queue.JobTypeArchiveComments, queue.ArchivePayload{StreamID: "s1"})
	unknown := &queue.Job{ID: "x", Type: "mystery"}
	q := &fakeQueue{jobs: []*queue.Job{ok, bad, unknown}}

	var mu sync.Mutex
	var seen []string
	r := NewRunner(q, nil)
	r.backoff = time.Millisecond
	r.Handle(queue.JobTypeLiveStarted, handlerFunc(func(_ context.Context, job *queue.Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}))
	r.Handle(queue.JobTypeArchiveComments, handlerFunc(func(context.Context, *queue.Job) error {
		return errors.New("s3 down")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.retried) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	assert.Equal(t, []string{ok.ID}, seen)
	mu.Unlock()
	assert.Equal(t, bad.ID, q.retried[0].ID)
	assert.Equal(t, 1, q.retried[0].Attempt)
	assert.Equal(t, unknown.ID, q.retried[1].ID)
}

func TestPushProcessor(t *testing.T) {
	var got queue.LiveStartedPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	job := mustJob(t, queue.JobTypeLiveStarted, queue.LiveStartedPayload{Tokens: []string{"t1"}, Title: "alice is live"})
	require.NoError(t, NewPushProcessor(srv.URL, "key", nil).Process(context.Background(), job))
	assert.Equal(t, "Bearer key", auth)
	assert.Equal(t, []string{"t1"}, got.Tokens)
	assert.Equal(t, "alice is live", got.Title)
}

func TestPushProcessorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	job := mustJob(t, queue.JobTypeLiveStarted, queue.LiveStartedPayload{Tokens: []string{"t1"}})
	assert.Error(t, NewPushProcessor(srv.URL, "", nil).Process(context.Background(), job))
	assert.NoError(t, NewPushProcessor("", "", nil).Process(context.Background(), job), "no gateway is a no-op")
}

type fakeComments struct {
	list []models.Comment
	err  error
}

func (f fakeComments) ListComments(context.Context, string, int) ([]models.Comment, error) {
	return f.list, f.err
}

type fakeArchiver struct {
	key  string
	body []byte
	err  error
}

func (f *fakeArchiver) UploadArchive(_ context.Context, key string, body []byte) (string, error) {
	f.key, f.body = key, body
	return "https://bucket/" + key, f.err
}

func TestArchiveProcessor(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	comments := fakeComments{list: []models.Comment{
		{ID: "01A", StreamID: "s1", Username: "bob", Text: "hi", CreatedAt: now},
		{ID: "01B", StreamID: "s1", Username: "eve", Text: "yo", CreatedAt: now},
	}}
	arch := &fakeArchiver{}
	p := NewArchiveProcessor(comments, arch, nil)
	p.now = func() time.Time { return now }

	job := mustJob(t, queue.JobTypeArchiveComments, queue.ArchivePayload{StreamID: "s1", HostUsername: "alice", EndedAt: now})
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, "archives/s1.json", arch.key)

	var doc Archive
	require.NoError(t, json.Unmarshal(arch.body, &doc))
	assert.Equal(t, "alice", doc.HostUsername)
	require.Len(t, doc.Comments, 2)
	assert.Equal(t, "hi", doc.Comments[0].Text)
}

func TestArchiveProcessorErrors(t *testing.T) {
	job := mustJob(t, queue.JobTypeArchiveComments, queue.ArchivePayload{StreamID: "s1"})

	err := NewArchiveProcessor(fakeComments{err: errors.New("db down")}, &fakeArchiver{}, nil).Process(context.Background(), job)
	assert.ErrorContains(t, err, "list comments")

	err = NewArchiveProcessor(fakeComments{}, &fakeArchiver{err: errors.New("denied")}, nil).Process(context.Background(), job)
	assert.ErrorContains(t, err, "upload archive")
}
