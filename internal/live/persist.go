package live

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/metrics"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	Shards         int
	PersistTimeout time.Duration // per attempt
	PersistRetries int           // negative disables retries
	PersistBackoff time.Duration // multiplied by the attempt number
}

const (
	defaultShards         = 32
	defaultPersistTimeout = 3 * time.Second
	defaultPersistRetries = 2
	defaultPersistBackoff = 100 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = defaultShards
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = defaultPersistTimeout
	}
	if o.PersistRetries < 0 {
		o.PersistRetries = 0
	} else if o.PersistRetries == 0 {
		o.PersistRetries = defaultPersistRetries
	}
	if o.PersistBackoff <= 0 {
		o.PersistBackoff = defaultPersistBackoff
	}
	return o
}

// persister runs store calls with a per-attempt timeout and linear backoff between attempts.
type persister struct {
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// do runs fn until it succeeds or the retry budget is spent. Cancellation of ctx is ignored:
// a committed mutation is always either persisted or reported as failed.
func (p persister) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * p.backoff)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		p.logger.Warn("store call failed", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	metrics.PersistFailures.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
