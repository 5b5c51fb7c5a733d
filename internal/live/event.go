package live

import "time"

// EventType names an outbound real-time event.
type EventType string

const (
	EventViewsUpdate EventType = "viewsUpdate"
	EventLikesUpdate EventType = "likesUpdate"
	EventNewComment  EventType = "newComment"
	EventLiveEnded   EventType = "liveEnded"
)

// Event is one delta fanned out to every member of a session.
type Event struct {
	SessionID string
	Type      EventType
	Payload   any

	// final marks the last event of a session; members are detached once it is delivered.
	final bool
	// afterFinal runs once the final event went out, outside the broadcaster's locks.
	afterFinal func()
}

// CountPayload is the body of viewsUpdate and likesUpdate.
type CountPayload struct {
	Count int64 `json:"count"`
}

// CommentPayload is the body of newComment.
type CommentPayload struct {
	Username string    `json:"username"`
	Comment  string    `json:"comment"`
	Time     time.Time `json:"time"`
}

// EndedPayload is the (empty) body of liveEnded.
type EndedPayload struct{}

// Conn is a member connection that can receive events.
// Send must not block; it reports false when the event was dropped.
type Conn interface {
	ID() string
	Send(ev Event) bool
}

// Ticket reserves a slot in a session's broadcast order. Tickets are issued in commit order
// and every ticket must be settled exactly once, by Publish or Skip.
type Ticket struct {
	SessionID string
	Seq       uint64
}
