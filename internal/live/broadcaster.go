package live

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/metrics"
)

const mirrorBuffer = 1024

// MemberSource provides the fan-out targets of a session.
type MemberSource interface {
	Members(sessionID string) []Conn
	DetachAll(sessionID string)
}

// Mirror republishes delivered events outside the process (e.g. Redis pub/sub).
type Mirror interface {
	PublishStreamEvent(ctx context.Context, streamID, event string, payload []byte) error
}

// outbox orders the events of one session. Slots settle in any order but are
// delivered strictly by sequence number.
type outbox struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]*Event // nil value = skipped slot
}

type outboxShard struct {
	mu       sync.Mutex
	outboxes map[string]*outbox
}

type mirrored struct {
	streamID string
	event    string
	payload  []byte
}

// Broadcaster fans events out to the members of a session in commit order.
// Sends are non-blocking: a member whose buffer is full misses the event.
type Broadcaster struct {
	shards   []*outboxShard
	members  MemberSource
	mirror   Mirror
	mirrorCh chan mirrored
	logger   *zap.Logger
}

// NewBroadcaster creates a broadcaster reading membership from members.
// mirror may be nil.
func NewBroadcaster(members MemberSource, mirror Mirror, shards int, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shards <= 0 {
		shards = 1
	}
	b := &Broadcaster{
		shards:  make([]*outboxShard, shards),
		members: members,
		mirror:  mirror,
		logger:  logger,
	}
	for i := range b.shards {
		b.shards[i] = &outboxShard{outboxes: make(map[string]*outbox)}
	}
	if mirror != nil {
		b.mirrorCh = make(chan mirrored, mirrorBuffer)
	}
	return b
}

// Run forwards delivered events to the mirror until ctx is done. It is a no-op without a mirror.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.mirror == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.mirrorCh:
			if err := b.mirror.PublishStreamEvent(ctx, m.streamID, m.event, m.payload); err != nil {
				b.logger.Warn("mirror publish failed", zap.String("stream_id", m.streamID), zap.String("event", m.event), zap.Error(err))
			}
		}
	}
}

func (b *Broadcaster) outbox(sessionID string) *outbox {
	sh := b.shards[shardIndex(sessionID, len(b.shards))]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	o := sh.outboxes[sessionID]
	if o == nil {
		o = &outbox{next: 1, pending: make(map[uint64]*Event)}
		sh.outboxes[sessionID] = o
	}
	return o
}

func (b *Broadcaster) drop(sessionID string) {
	sh := b.shards[shardIndex(sessionID, len(b.shards))]
	sh.mu.Lock()
	delete(sh.outboxes, sessionID)
	sh.mu.Unlock()
}

// Publish settles t with ev. ev is delivered once every earlier ticket of the session has settled.
func (b *Broadcaster) Publish(t Ticket, ev Event) {
	ev.SessionID = t.SessionID
	b.settle(t, &ev)
}

// Skip settles t without delivering anything, releasing later events.
func (b *Broadcaster) Skip(t Ticket) {
	b.settle(t, nil)
}

func (b *Broadcaster) settle(t Ticket, ev *Event) {
	if after := b.release(t, ev); after != nil {
		after()
	}
}

// release records ev in its slot and delivers every event that became due. It returns the
// final event's afterFinal hook when the session's last event was delivered.
func (b *Broadcaster) release(t Ticket, ev *Event) func() {
	o := b.outbox(t.SessionID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if t.Seq < o.next {
		b.logger.Warn("ticket settled twice", zap.String("stream_id", t.SessionID), zap.Uint64("seq", t.Seq))
		return nil
	}
	o.pending[t.Seq] = ev
	for {
		next, ok := o.pending[o.next]
		if !ok {
			return nil
		}
		delete(o.pending, o.next)
		o.next++
		if next == nil {
			continue
		}
		b.deliver(*next)
		if next.final {
			b.members.DetachAll(t.SessionID)
			b.drop(t.SessionID)
			return next.afterFinal
		}
	}
}

func (b *Broadcaster) deliver(ev Event) {
	typ := string(ev.Type)
	for _, c := range b.members.Members(ev.SessionID) {
		if c.Send(ev) {
			metrics.EventsDelivered.WithLabelValues(typ).Inc()
		} else {
			metrics.EventsDropped.WithLabelValues(typ).Inc()
		}
	}
	if b.mirrorCh == nil {
		return
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return
	}
	select {
	case b.mirrorCh <- mirrored{streamID: ev.SessionID, event: typ, payload: payload}:
	default:
		// mirror lagging, skip
	}
}
