package live

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
)

var errStoreDown = errors.New("store down")

type memStore struct {
	mu       sync.Mutex
	streams  map[string]models.LiveStream
	comments []models.Comment
	viewers  map[string]models.Viewer
	fail     atomic.Bool
	writes   atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{
		streams: make(map[string]models.LiveStream),
		viewers: make(map[string]models.Viewer),
	}
}

func (m *memStore) check() error {
	m.writes.Add(1)
	if m.fail.Load() {
		return errStoreDown
	}
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s models.LiveStream) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[s.ID] = s
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, id string, u models.StreamUpdate) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return errors.New("no such stream")
	}
	if u.Views != nil && *u.Views > s.Views {
		s.Views = *u.Views
	}
	if u.Likes != nil && *u.Likes > s.Likes {
		s.Likes = *u.Likes
	}
	if u.CommentCount != nil && *u.CommentCount > s.CommentCount {
		s.CommentCount = *u.CommentCount
	}
	if u.EndedAt != nil {
		s.IsLive = false
		s.EndedAt = u.EndedAt
	}
	m.streams[id] = s
	return nil
}

func (m *memStore) AppendComment(_ context.Context, c models.Comment) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, c)
	return nil
}

func (m *memStore) UpsertMembership(_ context.Context, v models.Viewer) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := v.StreamID + "/" + v.UserID
	if _, ok := m.viewers[key]; !ok {
		m.viewers[key] = v
	}
	return nil
}

func (m *memStore) ListLive(_ context.Context) ([]models.LiveStream, error) {
	if m.fail.Load() {
		return nil, errStoreDown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LiveStream
	for _, s := range m.streams {
		if s.IsLive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LiveSince.After(out[j].LiveSince) })
	return out, nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*models.LiveStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) ListComments(_ context.Context, streamID string, limit int) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comment
	for _, c := range m.comments {
		if c.StreamID == streamID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) ListViewers(_ context.Context, streamID string) ([]models.Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Viewer
	for _, v := range m.viewers {
		if v.StreamID == streamID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) stream(id string) models.LiveStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[id]
}

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []Event
	full   atomic.Bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(ev Event) bool {
	if f.full.Load() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeConn) types() []EventType {
	var out []EventType
	for _, ev := range f.received() {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakeConn) counts(typ EventType) []int64 {
	var out []int64
	for _, ev := range f.received() {
		if ev.Type == typ {
			out = append(out, ev.Payload.(CountPayload).Count)
		}
	}
	return out
}

type engine struct {
	store   *memStore
	tracker *Tracker
	bc      *Broadcaster
	reg     *Registry
	coord   *Coordinator
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := newMemStore()
	tracker := NewTracker(4)
	bc := NewBroadcaster(tracker, nil, 4, zap.NewNop())
	reg := NewRegistry(store, tracker, bc, Options{
		Shards:         4,
		PersistTimeout: time.Second,
		PersistRetries: -1,
		PersistBackoff: time.Millisecond,
	}, zap.NewNop())
	return &engine{store: store, tracker: tracker, bc: bc, reg: reg, coord: NewCoordinator(reg, zap.NewNop())}
}
