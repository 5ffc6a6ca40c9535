package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
)

const DefaultReconcileInterval = 5 * time.Minute

// Orphan is an expense whose raw message is still unprocessed.
type Orphan struct {
	ExpenseID    string `db:"expense_id"`
	RawMessageID string `db:"raw_message_id"`
}

type OrphanFinder interface {
	FindOrphans(ctx context.Context, limit int) ([]Orphan, error)
}

// Reconciler points orphaned raw messages at their expense. The commit
// transaction makes orphans impossible on its own; this repairs rows written
// by anything that bypassed it.
type Reconciler struct {
	orphans OrphanFinder
	repo    rawmessage.RepositoryAPI
	batch   int
	logger  *slog.Logger
}

func NewReconciler(orphans OrphanFinder, repo rawmessage.RepositoryAPI, batch int, logger *slog.Logger) *Reconciler {
	if batch <= 0 {
		batch = DefaultReplayBatch
	}
	return &Reconciler{
		orphans: orphans,
		repo:    repo,
		batch:   batch,
		logger:  logger,
	}
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	orphans, err := r.orphans.FindOrphans(ctx, r.batch)
	if err != nil {
		r.logger.Error("failed to find orphaned expenses", "error", err)
		return 0, err
	}

	repaired := 0
	for _, o := range orphans {
		err := r.repo.MarkCommitted(ctx, o.RawMessageID, o.ExpenseID)
		if errors.Is(err, internal.ErrAlreadyProcessed) {
			continue
		}
		if err != nil {
			r.logger.Warn("failed to repair orphaned expense",
				"raw_message_id", o.RawMessageID,
				"expense_id", o.ExpenseID,
				"error", err)
			continue
		}
		r.logger.Info("repaired orphaned expense", "raw_message_id", o.RawMessageID, "expense_id", o.ExpenseID)
		repaired++
	}
	return repaired, nil
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	r.logger.Info("reconcile job started", "interval", interval)
	every(ctx, interval, func(ctx context.Context) {
		_, _ = r.ReconcileOnce(ctx)
	})
}
