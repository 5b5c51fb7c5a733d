package live

import (
	"sync"
	"time"

	"github.com/aura-live/backend/pkg/metrics"
)

// Member is a snapshot of one active membership.
type Member struct {
	SessionID string
	Conn      Conn
	UserID    string
	JoinedAt  time.Time
}

// roster is the connection set of one live session.
// byUser enforces at most one connection per user identity.
type roster struct {
	mu     sync.RWMutex
	byConn map[string]*Member
	byUser map[string]string // userID -> connID
}

type rosterShard struct {
	mu      sync.RWMutex
	rosters map[string]*roster
}

// Tracker maintains session_id -> set of member connections. A roster exists only
// while its session is live; Join against a missing roster fails with ErrNotFound.
type Tracker struct {
	shards []*rosterShard
	now    func() time.Time
}

// NewTracker creates a tracker split into n independently locked shards.
func NewTracker(n int) *Tracker {
	if n <= 0 {
		n = 1
	}
	t := &Tracker{shards: make([]*rosterShard, n), now: time.Now}
	for i := range t.shards {
		t.shards[i] = &rosterShard{rosters: make(map[string]*roster)}
	}
	return t
}

func (t *Tracker) shard(sessionID string) *rosterShard {
	return t.shards[shardIndex(sessionID, len(t.shards))]
}

func (t *Tracker) roster(sessionID string) *roster {
	sh := t.shard(sessionID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.rosters[sessionID]
}

// Open creates an empty roster for a session. Opening an existing roster is a no-op.
func (t *Tracker) Open(sessionID string) {
	sh := t.shard(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.rosters[sessionID] == nil {
		sh.rosters[sessionID] = &roster{
			byConn: make(map[string]*Member),
			byUser: make(map[string]string),
		}
	}
}

// Join attaches conn to the session as userID and returns the distinct member count.
// If userID is already attached through another connection, that connection is replaced
// and silently stops receiving events. Joining again from the same connection is a no-op.
func (t *Tracker) Join(sessionID string, conn Conn, userID string) (int, error) {
	r := t.roster(sessionID)
	if r == nil {
		return 0, ErrNotFound
	}
	connID := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byUser[userID]; ok {
		if prev == connID {
			return len(r.byConn), nil
		}
		delete(r.byConn, prev)
		metrics.Members.Dec()
	}
	// A connection re-identifying as another user drops its old identity.
	if m, ok := r.byConn[connID]; ok {
		delete(r.byUser, m.UserID)
		metrics.Members.Dec()
	}
	r.byConn[connID] = &Member{SessionID: sessionID, Conn: conn, UserID: userID, JoinedAt: t.now()}
	r.byUser[userID] = connID
	metrics.Members.Inc()
	return len(r.byConn), nil
}

// Leave detaches a connection. Unknown sessions or connections are ignored so that
// duplicate or late leave signals are harmless.
func (t *Tracker) Leave(sessionID, connID string) {
	r := t.roster(sessionID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if r.byUser[m.UserID] == connID {
		delete(r.byUser, m.UserID)
	}
	metrics.Members.Dec()
}

// Members returns a snapshot of the session's connections. The slice is owned by the caller.
func (t *Tracker) Members(sessionID string) []Conn {
	r := t.roster(sessionID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.byConn))
	for _, m := range r.byConn {
		out = append(out, m.Conn)
	}
	return out
}

// Snapshot returns copies of the session's membership records.
func (t *Tracker) Snapshot(sessionID string) []Member {
	r := t.roster(sessionID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.byConn))
	for _, m := range r.byConn {
		out = append(out, *m)
	}
	return out
}

// Count returns the number of attached connections.
func (t *Tracker) Count(sessionID string) int {
	r := t.roster(sessionID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// DetachAll removes the session's roster and every membership in it.
func (t *Tracker) DetachAll(sessionID string) {
	sh := t.shard(sessionID)
	sh.mu.Lock()
	r := sh.rosters[sessionID]
	delete(sh.rosters, sessionID)
	sh.mu.Unlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	metrics.Members.Sub(float64(len(r.byConn)))
	r.byConn = make(map[string]*Member)
	r.byUser = make(map[string]string)
	r.mu.Unlock()
}
