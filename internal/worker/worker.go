package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/queue"
)

// JobQueue is the job source the worker drains.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Handler processes one job of a given type.
type Handler interface {
	Process(ctx context.Context, job *queue.Job) error
}

// Runner dequeues jobs and routes them to the handler registered for their type.
type Runner struct {
	queue    JobQueue
	handlers map[queue.JobType]Handler
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRunner creates a worker loop over q.
func NewRunner(q JobQueue, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{queue: q, handlers: make(map[queue.JobType]Handler), backoff: queue.RetryBackoff, logger: logger}
}

// Handle registers h for jobs of type t.
func (r *Runner) Handle(t queue.JobType, h Handler) {
	r.handlers[t] = h
}

// Process runs one job through its handler.
func (r *Runner) Process(ctx context.Context, job *queue.Job) error {
	h, ok := r.handlers[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	return h.Process(ctx, job)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, r.backoff)
			continue
		}
		if job == nil {
			continue
		}

		r.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := r.Process(ctx, job); err != nil {
			r.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
			if reErr := r.queue.Retry(ctx, job); reErr != nil {
				r.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, r.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
