package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/queue"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
)

const (
	DefaultReplayGrace    = 2 * time.Minute
	DefaultReplayBatch    = 100
	DefaultReplayInterval = time.Minute
)

type ReplayConfig struct {
	Grace       time.Duration
	MaxAttempts int
	Batch       int
}

// Replayer re-enqueues raw messages that are still unprocessed after the
// grace period: lost deliveries and RetryableFailed messages below the
// attempt cap.
type Replayer struct {
	repo   rawmessage.RepositoryAPI
	queue  queue.Publisher
	cfg    ReplayConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewReplayer(repo rawmessage.RepositoryAPI, q queue.Publisher, cfg ReplayConfig, logger *slog.Logger) *Replayer {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultReplayGrace
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultReplayBatch
	}
	return &Replayer{
		repo:   repo,
		queue:  q,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Replayer) Requeue(ctx context.Context, id string) error {
	if err := r.queue.Publish(ctx, id); err != nil {
		return err
	}
	r.logger.Info("raw message requeued", "raw_message_id", id)
	return nil
}

// ReplayOnce enqueues one batch and reports how many ids it handed over.
func (r *Replayer) ReplayOnce(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.cfg.Grace)

	items, err := r.repo.ListReplayable(ctx, cutoff, r.cfg.MaxAttempts, r.cfg.Batch)
	if err != nil {
		r.logger.Error("failed to list replayable raw messages", "error", err)
		return 0, err
	}

	replayed := 0
	for _, item := range items {
		if err := r.queue.Publish(ctx, item.ID); err != nil {
			r.logger.Warn("failed to replay raw message", "raw_message_id", item.ID, "error", err)
			continue
		}
		replayed++
	}

	if len(items) > 0 {
		r.logger.Info("replayed raw messages", "selected", len(items), "replayed", replayed)
	}
	return replayed, nil
}

func (r *Replayer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	r.logger.Info("replay job started", "interval", interval, "grace", r.cfg.Grace, "max_attempts", r.cfg.MaxAttempts)
	every(ctx, interval, func(ctx context.Context) {
		_, _ = r.ReplayOnce(ctx)
	})
}

// DirectDispatch satisfies queue.Publisher by processing the id in the
// calling goroutine. One-shot commands use it instead of a queue.
type DirectDispatch struct {
	Processor ProcessorAPI
}

func (d DirectDispatch) Publish(ctx context.Context, id string) error {
	_, err := d.Processor.Process(ctx, id)
	return err
}
