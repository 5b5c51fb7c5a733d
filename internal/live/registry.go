package live

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/metrics"
)

// EndedHandler is called after a session has ended and its final event was delivered.
// It may run on the goroutine that settled the session's last pending mutation.
type EndedHandler func(s models.LiveStream)

// session is the mutable state of one stream. All fields are guarded by mu.
type session struct {
	mu   sync.Mutex
	data models.LiveStream
	seen map[string]struct{} // users that ever joined; drives the distinct view count. nil once ended
	seq  uint64              // last ticket issued

	endPersisted bool
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// Registry is the in-memory authority on which sessions exist and which are live.
// State is sharded by session id so unrelated sessions never contend on a lock.
type Registry struct {
	shards      []*sessionShard
	store       Store
	tracker     *Tracker
	broadcaster *Broadcaster
	persist     persister
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	hookMu  sync.RWMutex
	onEnded EndedHandler
}

// NewRegistry creates a registry backed by store. tracker and broadcaster receive the
// roster and final event of every session the registry opens or closes.
func NewRegistry(store Store, tracker *Tracker, broadcaster *Broadcaster, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	r := &Registry{
		shards:      make([]*sessionShard, opts.Shards),
		store:       store,
		tracker:     tracker,
		broadcaster: broadcaster,
		persist: persister{
			timeout: opts.PersistTimeout,
			retries: opts.PersistRetries,
			backoff: opts.PersistBackoff,
			logger:  logger,
		},
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for i := range r.shards {
		r.shards[i] = &sessionShard{sessions: make(map[string]*session)}
	}
	return r
}

// SetEndedHandler sets the callback run after a session ends (e.g. to archive comments).
func (r *Registry) SetEndedHandler(fn EndedHandler) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onEnded = fn
}

func (r *Registry) shard(id string) *sessionShard {
	return r.shards[shardIndex(id, len(r.shards))]
}

func (r *Registry) lookup(id string) (*session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

func (r *Registry) insert(s *session) bool {
	sh := r.shard(s.data.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.sessions[s.data.ID]; exists {
		return false
	}
	sh.sessions[s.data.ID] = s
	return true
}

// Open starts a new live session for host. The session becomes visible only after it
// has been recorded durably; if that fails nothing is kept and ErrStartFailed is returned.
func (r *Registry) Open(ctx context.Context, host string) (models.LiveStream, error) {
	s := &session{
		data: models.LiveStream{
			ID:           r.newID(),
			HostUsername: host,
			IsLive:       true,
			LiveSince:    r.now().UTC(),
		},
		seen: make(map[string]struct{}),
	}
	err := r.persist.do(ctx, "create_session", func(ctx context.Context) error {
		return r.store.CreateSession(ctx, s.data)
	})
	if err != nil {
		r.abandon(ctx, s.data.ID)
		return models.LiveStream{}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	r.tracker.Open(s.data.ID)
	if !r.insert(s) {
		return models.LiveStream{}, fmt.Errorf("%w: duplicate session id %s", ErrStartFailed, s.data.ID)
	}
	metrics.LiveSessions.Inc()
	r.logger.Info("live session opened", zap.String("stream_id", s.data.ID), zap.String("host", host))
	return s.data, nil
}

// abandon marks a session that failed to open as ended in the store, in case the create
// reached the store even though it reported an error. Failures are only logged.
func (r *Registry) abandon(ctx context.Context, id string) {
	ended := r.now().UTC()
	err := r.persist.do(ctx, "abandon_session", func(ctx context.Context) error {
		return r.store.UpdateSession(ctx, id, models.StreamUpdate{EndedAt: &ended})
	})
	if err != nil {
		r.logger.Warn("abandoned session not marked ended", zap.String("stream_id", id), zap.Error(err))
	}
}

// Close ends a session. It returns ErrNotFound for unknown ids and succeeds without effect
// when the session already ended. Members receive liveEnded after every earlier event and
// are then detached. The ended handler runs once liveEnded went out, which is after every
// earlier mutation of the session has been persisted or has failed.
func (r *Registry) Close(ctx context.Context, id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	if !s.data.IsLive {
		retry := !s.endPersisted
		ended := *s.data.EndedAt
		s.mu.Unlock()
		if retry {
			return r.persistEnd(ctx, s, ended)
		}
		return nil
	}
	ended := r.now().UTC()
	s.data.IsLive = false
	s.data.EndedAt = &ended
	s.seen = nil
	s.seq++
	ticket := Ticket{SessionID: id, Seq: s.seq}
	snapshot := s.data
	s.mu.Unlock()

	metrics.LiveSessions.Dec()

	r.hookMu.RLock()
	onEnded := r.onEnded
	r.hookMu.RUnlock()
	ev := Event{Type: EventLiveEnded, Payload: EndedPayload{}, final: true}
	if onEnded != nil {
		ev.afterFinal = func() { onEnded(snapshot) }
	}
	// liveEnded goes out even if the durable write fails: the session is already closed in memory.
	r.broadcaster.Publish(ticket, ev)
	err := r.persistEnd(ctx, s, ended)
	r.logger.Info("live session closed", zap.String("stream_id", id))
	return err
}

func (r *Registry) persistEnd(ctx context.Context, s *session, ended time.Time) error {
	err := r.persist.do(ctx, "end_session", func(ctx context.Context) error {
		return r.store.UpdateSession(ctx, s.data.ID, models.StreamUpdate{EndedAt: &ended})
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.endPersisted = true
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (models.LiveStream, error) {
	s, ok := r.lookup(id)
	if !ok {
		return models.LiveStream{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}

// ListLive returns copies of all live sessions, newest first.
func (r *Registry) ListLive() []models.LiveStream {
	var out []models.LiveStream
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			s.mu.Lock()
			if s.data.IsLive {
				out = append(out, s.data)
			}
			s.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LiveSince.Equal(out[j].LiveSince) {
			return out[i].ID > out[j].ID
		}
		return out[i].LiveSince.After(out[j].LiveSince)
	})
	return out
}

// Restore loads sessions the store still marks live, e.g. after a restart.
// Counters and the set of users that already joined are taken from the store.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	var streams []models.LiveStream
	err := r.persist.do(ctx, "list_live", func(ctx context.Context) error {
		var err error
		streams, err = r.store.ListLive(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, ls := range streams {
		if _, ok := r.lookup(ls.ID); ok {
			continue
		}
		var viewers []models.Viewer
		err := r.persist.do(ctx, "list_viewers", func(ctx context.Context) error {
			var err error
			viewers, err = r.store.ListViewers(ctx, ls.ID)
			return err
		})
		if err != nil {
			return restored, err
		}
		s := &session{data: ls, seen: make(map[string]struct{}, len(viewers))}
		for _, v := range viewers {
			s.seen[v.UserID] = struct{}{}
		}
		r.tracker.Open(ls.ID)
		if r.insert(s) {
			metrics.LiveSessions.Inc()
			restored++
		}
	}
	r.logger.Info("live sessions restored", zap.Int("count", restored))
	return restored, nil
}

// commit applies fn to a live session under its lock and issues the broadcast ticket for
// the resulting state. fn must not block.
func (r *Registry) commit(id string, fn func(s *session)) (Ticket, models.LiveStream, error) {
	s, ok := r.lookup(id)
	if !ok {
		return Ticket{}, models.LiveStream{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data.IsLive {
		return Ticket{}, models.LiveStream{}, ErrSessionClosed
	}
	fn(s)
	s.seq++
	return Ticket{SessionID: id, Seq: s.seq}, s.data, nil
}
