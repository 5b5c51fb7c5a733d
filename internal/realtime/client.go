package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/middleware"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// Inbound events.
const (
	EventJoinLive  = "joinLive"
	EventLeaveLive = "leaveLive"
	EventLike      = "like"
	EventComment   = "comment"
	EventError     = "error"
)

// WSMessage is the WebSocket message envelope in both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinData struct {
	StreamID string `json:"stream_id"`
	UserID   string `json:"user_id"`
}

type commentData struct {
	StreamID string `json:"stream_id"`
	Username string `json:"username"`
	Comment  string `json:"comment"`
}

type errorData struct {
	Message string `json:"message"`
}

// Server upgrades HTTP requests to viewer connections.
type Server struct {
	coord      *live.Coordinator
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewServer creates a WebSocket server. allowedOrigins is comma-separated, "*" allows all.
func NewServer(coord *live.Coordinator, sendBuffer int, allowedOrigins string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Server{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	origins := middleware.ParseOrigins(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins.Allows(origin)
	}
}

// ServeWs handles GET /ws and runs the connection until it closes.
func (s *Server) ServeWs(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		id:       uuid.New().String(),
		coord:    s.coord,
		conn:     conn,
		send:     make(chan []byte, s.sendBuffer),
		done:     make(chan struct{}),
		sessions: make(map[string]struct{}),
		logger:   s.logger,
	}
	go client.writePump()
	client.readPump(c.Request.Context())
}

// Client is one viewer or host connection. It may be a member of several streams.
type Client struct {
	id     string
	coord  *live.Coordinator
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]struct{}
	closed   bool
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues ev for writing. It never blocks and returns false when the queue is full
// or the connection is gone.
func (c *Client) Send(ev live.Event) bool {
	if ev.Type == live.EventLiveEnded {
		c.mu.Lock()
		delete(c.sessions, ev.SessionID)
		c.mu.Unlock()
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return false
	}
	return c.enqueue(string(ev.Type), data)
}

func (c *Client) enqueue(event string, data []byte) bool {
	msg, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(errorData{Message: message})
	c.enqueue(EventError, data)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg WSMessage) {
	switch msg.Event {
	case EventJoinLive:
		var d joinData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.StreamID == "" {
			c.sendError("stream_id required")
			return
		}
		userID := d.UserID
		if userID == "" {
			userID = "conn:" + c.id
		}
		res, err := c.coord.RecordJoin(ctx, d.StreamID, c, userID)
		if res.Attached {
			c.mu.Lock()
			c.sessions[d.StreamID] = struct{}{}
			c.mu.Unlock()
		}
		if err != nil {
			c.reject(d.StreamID, err)
		}
	case EventLeaveLive:
		var d joinData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.StreamID == "" {
			c.sendError("stream_id required")
			return
		}
		c.coord.RecordLeave(d.StreamID, c.id)
		c.mu.Lock()
		delete(c.sessions, d.StreamID)
		c.mu.Unlock()
	case EventLike:
		var d joinData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.StreamID == "" {
			c.sendError("stream_id required")
			return
		}
		if _, err := c.coord.RecordLike(ctx, d.StreamID); err != nil {
			c.reject(d.StreamID, err)
		}
	case EventComment:
		var d commentData
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.StreamID == "" {
			c.sendError("stream_id required")
			return
		}
		if _, err := c.coord.RecordComment(ctx, d.StreamID, d.Username, d.Comment); err != nil {
			c.reject(d.StreamID, err)
		}
	default:
		c.sendError("unknown event " + msg.Event)
	}
}

func (c *Client) reject(streamID string, err error) {
	switch {
	case errors.Is(err, live.ErrNotFound):
		c.sendError("stream not found")
	case errors.Is(err, live.ErrSessionClosed):
		c.sendError("stream has ended")
	default:
		c.logger.Warn("live action failed", zap.String("conn_id", c.id), zap.String("stream_id", streamID), zap.Error(err))
		c.sendError("temporarily unavailable")
	}
}

// close detaches the connection from every stream it joined.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	joined := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		joined = append(joined, id)
	}
	c.sessions = nil
	c.mu.Unlock()

	for _, id := range joined {
		c.coord.RecordLeave(id, c.id)
	}
	close(c.done)
	_ = c.conn.Close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
