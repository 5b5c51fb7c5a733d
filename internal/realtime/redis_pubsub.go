package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
)

const (
	channelPrefix = "live:"
	publishWait   = 5 * time.Second
)

var _ live.Mirror = (*RedisPubSub)(nil)

// StreamEvent is the message published to Redis for every delivered stream event.
type StreamEvent struct {
	StreamID string          `json:"stream_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	At       int64           `json:"at"`
}

// Channel returns the Redis channel of a stream.
func Channel(streamID string) string {
	return channelPrefix + streamID
}

// RedisPubSub mirrors stream events to Redis pub/sub for consumers outside this process.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for stream events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStreamEvent publishes an event to the stream's Redis channel.
func (r *RedisPubSub) PublishStreamEvent(ctx context.Context, streamID, event string, payload []byte) error {
	body, err := json.Marshal(StreamEvent{StreamID: streamID, Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishWait)
	defer cancel()
	return r.client.Publish(ctx, Channel(streamID), body).Err()
}

// SubscribeStream calls handler for each event mirrored for streamID until ctx is done
// or the stream ends.
func (r *RedisPubSub) SubscribeStream(ctx context.Context, streamID string, handler func(StreamEvent)) error {
	pubsub := r.client.Subscribe(ctx, Channel(streamID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev StreamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Debug("skipping malformed stream event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(ev)
			if ev.Event == string(live.EventLiveEnded) {
				return nil
			}
		}
	}
}
