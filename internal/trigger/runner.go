package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/core/events"
	"github.com/frahmantamala/sms-expense-pipeline/internal/queue"
)

const (
	DefaultRetryBackoff = 2 * time.Second
	ackTimeout          = 5 * time.Second
)

type ProcessorAPI interface {
	Process(ctx context.Context, id string) (Outcome, error)
}

// Runner moves ids from the delivery queue into the worker pool and settles
// each delivery once the processor returns.
type Runner struct {
	queue        queue.Queue
	processor    ProcessorAPI
	pool         *Pool
	retryBackoff time.Duration
	logger       *slog.Logger
}

func NewRunner(q queue.Queue, processor ProcessorAPI, poolConfig PoolConfig, retryBackoff time.Duration, logger *slog.Logger) *Runner {
	if retryBackoff <= 0 {
		retryBackoff = DefaultRetryBackoff
	}
	r := &Runner{
		queue:        q,
		processor:    processor,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
	r.pool = NewPool(poolConfig, r.handle, logger)
	return r
}

// Run receives until ctx is cancelled, then shuts the pool down. Deliveries
// still in flight are left unacknowledged.
func (r *Runner) Run(ctx context.Context) error {
	r.pool.Start()
	defer r.pool.Shutdown()

	r.logger.Info("trigger runner started")
	for {
		if ctx.Err() != nil {
			r.logger.Info("trigger runner stopping")
			return nil
		}

		id, err := r.queue.Receive(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrNoMessage):
			continue
		case errors.Is(err, queue.ErrClosed):
			r.logger.Info("delivery queue closed, trigger runner stopping")
			return nil
		case ctx.Err() != nil:
			continue
		default:
			r.logger.Error("failed to receive from delivery queue", "error", err)
			sleep(ctx, r.retryBackoff)
			continue
		}

		if err := r.pool.Submit(ctx, Job{RawMessageID: id}); err != nil {
			r.logger.Warn("could not hand delivery to worker pool", "raw_message_id", id, "error", err)
			r.settle(ctx, id, r.queue.Nack)
		}
	}
}

func (r *Runner) handle(ctx context.Context, job Job) {
	outcome, err := r.processor.Process(ctx, job.RawMessageID)
	if err != nil {
		if ctx.Err() != nil {
			// shutdown; the delivery is recovered on the next start
			return
		}
		r.logger.Error("trigger failed, delivery will be retried", "raw_message_id", job.RawMessageID, "error", err)
		sleep(ctx, r.retryBackoff)
		r.settle(ctx, job.RawMessageID, r.queue.Nack)
		return
	}

	r.logger.Debug("trigger finished",
		"raw_message_id", outcome.RawMessageID,
		"state", outcome.State,
		"skipped", outcome.Skipped)
	r.settle(ctx, job.RawMessageID, r.queue.Ack)
}

func (r *Runner) settle(ctx context.Context, id string, fn func(context.Context, string) error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := fn(sctx, id); err != nil {
		r.logger.Error("failed to settle delivery", "raw_message_id", id, "error", err)
	}
}

// EnqueueOnCreated forwards rawmessage.created events to the delivery queue.
func EnqueueOnCreated(q queue.Publisher, logger *slog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		created, ok := event.(*events.RawMessageCreatedEvent)
		if !ok {
			return nil
		}
		if err := q.Publish(ctx, created.RawMessageID); err != nil {
			logger.Error("failed to enqueue raw message", "raw_message_id", created.RawMessageID, "error", err)
			return err
		}
		return nil
	}
}

// AuditOutcome logs every rawmessage.processed event.
func AuditOutcome(logger *slog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		processed, ok := event.(*events.RawMessageProcessedEvent)
		if !ok {
			return nil
		}
		logger.Info("raw message processed",
			"event_id", processed.EventID(),
			"raw_message_id", processed.RawMessageID,
			"state", processed.State,
			"expense_id", processed.ExpenseID,
			"error_code", processed.ErrorCode)
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// every runs fn immediately and then on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}
