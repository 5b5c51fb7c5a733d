// Package notify tells followers that a host went live.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/queue"
)

const enqueueTimeout = 3 * time.Second

// Enqueuer accepts push jobs for the worker.
type Enqueuer interface {
	EnqueueLiveStarted(ctx context.Context, payload queue.LiveStartedPayload) error
}

// Dispatcher hands notifications to the job queue without making the caller wait.
// Delivery is best-effort; failures are logged and dropped.
type Dispatcher struct {
	enq    Enqueuer
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. A nil enqueuer disables notifications.
func NewDispatcher(enq Enqueuer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{enq: enq, logger: logger}
}

// Notify queues a push to tokens. Empty and duplicate tokens are dropped.
func (d *Dispatcher) Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) {
	tokens = uniqueTokens(tokens)
	if len(tokens) == 0 {
		return
	}
	if d.enq == nil {
		d.logger.Debug("notifications disabled, dropping push", zap.Int("tokens", len(tokens)))
		return
	}
	payload := queue.LiveStartedPayload{Tokens: tokens, Title: title, Body: body, Data: data}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
		defer cancel()
		if err := d.enq.EnqueueLiveStarted(ctx, payload); err != nil {
			d.logger.Warn("enqueue push failed", zap.Int("tokens", len(tokens)), zap.Error(err))
		}
	}()
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
