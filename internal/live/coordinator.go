package live

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/models"
)

// JoinResult is the outcome of RecordJoin.
type JoinResult struct {
	Views    int64 // distinct users that ever joined the session
	Members  int   // connections attached right now
	Attached bool  // conn is in the roster; the caller must RecordLeave it eventually
}

// Coordinator applies viewer actions to a session. Every operation follows the same
// contract: commit under the session lock and take a ticket, persist with no lock held,
// then publish the committed value (or skip the ticket if persistence failed).
type Coordinator struct {
	reg    *Registry
	logger *zap.Logger
}

// NewCoordinator creates a coordinator over reg.
func NewCoordinator(reg *Registry, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{reg: reg, logger: logger}
}

// RecordJoin attaches conn to the session as userID. The view count grows only the first
// time a user joins; reconnects replace the previous connection and re-broadcast the
// current count. On ErrPersistence the connection stays attached and Attached is set.
func (c *Coordinator) RecordJoin(ctx context.Context, sessionID string, conn Conn, userID string) (JoinResult, error) {
	var (
		first   bool
		members int
		joinErr error
	)
	ticket, snap, err := c.reg.commit(sessionID, func(s *session) {
		members, joinErr = c.reg.tracker.Join(sessionID, conn, userID)
		if joinErr != nil {
			return
		}
		if _, ok := s.seen[userID]; !ok {
			s.seen[userID] = struct{}{}
			s.data.Views++
			first = true
		}
	})
	if err != nil {
		return JoinResult{}, err
	}
	if joinErr != nil {
		c.reg.broadcaster.Skip(ticket)
		return JoinResult{}, joinErr
	}

	views := snap.Views
	err = c.reg.persist.do(ctx, "upsert_membership", func(ctx context.Context) error {
		return c.reg.store.UpsertMembership(ctx, models.Viewer{StreamID: sessionID, UserID: userID, JoinedAt: c.reg.now().UTC()})
	})
	if err == nil && first {
		err = c.reg.persist.do(ctx, "update_views", func(ctx context.Context) error {
			return c.reg.store.UpdateSession(ctx, sessionID, models.StreamUpdate{Views: &views})
		})
	}
	if err != nil {
		c.reg.broadcaster.Skip(ticket)
		return JoinResult{Views: views, Members: members, Attached: true}, err
	}
	c.reg.broadcaster.Publish(ticket, Event{Type: EventViewsUpdate, Payload: CountPayload{Count: views}})
	c.logger.Debug("viewer joined", zap.String("stream_id", sessionID), zap.String("user_id", userID), zap.Bool("first", first))
	return JoinResult{Views: views, Members: members, Attached: true}, nil
}

// RecordLeave detaches a connection. It never fails.
func (c *Coordinator) RecordLeave(sessionID, connID string) {
	c.reg.tracker.Leave(sessionID, connID)
}

// RecordLike adds one like. Every call counts; likes are not de-duplicated per user.
func (c *Coordinator) RecordLike(ctx context.Context, sessionID string) (int64, error) {
	ticket, snap, err := c.reg.commit(sessionID, func(s *session) {
		s.data.Likes++
	})
	if err != nil {
		return 0, err
	}
	likes := snap.Likes
	err = c.reg.persist.do(ctx, "update_likes", func(ctx context.Context) error {
		return c.reg.store.UpdateSession(ctx, sessionID, models.StreamUpdate{Likes: &likes})
	})
	if err != nil {
		c.reg.broadcaster.Skip(ticket)
		return likes, err
	}
	c.reg.broadcaster.Publish(ticket, Event{Type: EventLikesUpdate, Payload: CountPayload{Count: likes}})
	return likes, nil
}

// RecordComment appends a comment verbatim and bumps the comment count.
func (c *Coordinator) RecordComment(ctx context.Context, sessionID, username, text string) (models.Comment, error) {
	var comment models.Comment
	ticket, snap, err := c.reg.commit(sessionID, func(s *session) {
		now := c.reg.now().UTC()
		comment = models.Comment{
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			StreamID:  sessionID,
			Username:  username,
			Text:      text,
			CreatedAt: now,
		}
		s.data.CommentCount++
	})
	if err != nil {
		return models.Comment{}, err
	}
	count := snap.CommentCount
	err = c.reg.persist.do(ctx, "append_comment", func(ctx context.Context) error {
		return c.reg.store.AppendComment(ctx, comment)
	})
	if err == nil {
		err = c.reg.persist.do(ctx, "update_comment_count", func(ctx context.Context) error {
			return c.reg.store.UpdateSession(ctx, sessionID, models.StreamUpdate{CommentCount: &count})
		})
	}
	if err != nil {
		c.reg.broadcaster.Skip(ticket)
		return comment, err
	}
	c.reg.broadcaster.Publish(ticket, Event{Type: EventNewComment, Payload: CommentPayload{
		Username: comment.Username,
		Comment:  comment.Text,
		Time:     comment.CreatedAt,
	}})
	return comment, nil
}
