// Package trigger runs the raw message state machine: classify, validate and
// either discard the message, fail it or commit an expense for it. Every
// invocation may race with a redelivery of the same id, so all coordination
// goes through the stored flags and the unique expense index.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/classifier"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/events"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
)

const DefaultClassifierTimeout = 30 * time.Second

// Committer writes the expense and flags the raw message processed in one
// transaction, returning the id of the expense the message now points at.
type Committer interface {
	Commit(ctx context.Context, raw *rawmessage.RawMessage, draft expense.Draft) (string, error)
}

// Outcome describes what one invocation did. Skipped means another
// invocation had already settled the message.
type Outcome struct {
	RawMessageID string
	State        rawmessage.State
	ExpenseID    string
	Error        *rawmessage.Error
	Skipped      bool
}

type Config struct {
	ClassifierTimeout time.Duration
	Limits            Limits
}

type Processor struct {
	repo       rawmessage.RepositoryAPI
	committer  Committer
	classifier classifier.Classifier
	validator  *Validator
	publisher  events.Publisher
	timeout    time.Duration
	logger     *slog.Logger
}

func NewProcessor(
	repo rawmessage.RepositoryAPI,
	committer Committer,
	cls classifier.Classifier,
	sources SourceResolver,
	publisher events.Publisher,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	timeout := cfg.ClassifierTimeout
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	return &Processor{
		repo:       repo,
		committer:  committer,
		classifier: cls,
		validator:  NewValidator(cfg.Limits, sources),
		publisher:  publisher,
		timeout:    timeout,
		logger:     logger,
	}
}

// Process drives one raw message to its next state. A nil error means the
// delivery can be acknowledged, including when the message was retryably
// failed; an error means the store could not be written and the id should be
// delivered again.
func (p *Processor) Process(ctx context.Context, id string) (Outcome, error) {
	log := p.logger.With("raw_message_id", id)

	raw, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrRawMessageNotFound) {
			log.Info("raw message no longer exists, skipping")
			return Outcome{RawMessageID: id, State: rawmessage.StateDiscarded, Skipped: true}, nil
		}
		log.Error("failed to load raw message", "error", err)
		return Outcome{RawMessageID: id}, fmt.Errorf("load raw message %s: %w", id, err)
	}

	if raw.Settled() {
		log.Debug("raw message already settled, skipping", "state", raw.State())
		return skipped(raw), nil
	}

	log.Debug("processing raw message", "state", rawmessage.StateProcessing, "attempts", raw.Attempts)

	result, err := p.classify(ctx, raw)
	if err != nil {
		if classifier.IsRetryable(err) {
			log.Warn("classification failed, will retry", "error", err)
			return p.markRetryable(ctx, raw, err.Error())
		}
		log.Warn("classification rejected", "error", err)
		return p.markFailed(ctx, raw, err.Error())
	}

	if !result.IsTransaction {
		return p.discard(ctx, raw)
	}

	draft, err := p.validator.Draft(ctx, raw, result)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok {
			log.Info("classified transaction failed validation", "error", appErr.GetDetailedMessage())
			return p.markFailed(ctx, raw, appErr.GetDetailedMessage())
		}
		log.Warn("validation could not complete, will retry", "error", err)
		return p.markRetryable(ctx, raw, err.Error())
	}

	return p.commit(ctx, raw, draft)
}

func (p *Processor) classify(ctx context.Context, raw *rawmessage.RawMessage) (*classifier.Result, error) {
	cctx, cancel := internal.WithTimeout(ctx, p.timeout, DefaultClassifierTimeout)
	defer cancel()

	return p.classifier.Classify(cctx, classifier.Input{
		Sender:     raw.Sender,
		Message:    raw.Message,
		ReceivedAt: raw.ReceivedAt,
		UserID:     raw.UserID,
	})
}

func (p *Processor) discard(ctx context.Context, raw *rawmessage.RawMessage) (Outcome, error) {
	err := p.repo.DeleteUnprocessed(ctx, raw.ID)
	if errors.Is(err, internal.ErrAlreadyProcessed) {
		return p.lostRace(ctx, raw.ID)
	}
	if err != nil {
		return p.storeFailure(ctx, raw, "discard", err)
	}

	p.logger.Info("raw message is not a transaction, discarded", "raw_message_id", raw.ID)
	return p.finish(ctx, Outcome{RawMessageID: raw.ID, State: rawmessage.StateDiscarded}), nil
}

func (p *Processor) markRetryable(ctx context.Context, raw *rawmessage.RawMessage, message string) (Outcome, error) {
	e := rawmessage.Error{Code: string(internal.ErrCodeProcessingError), Message: message}

	err := p.repo.MarkRetryable(ctx, raw.ID, e)
	if errors.Is(err, internal.ErrAlreadyProcessed) {
		return p.lostRace(ctx, raw.ID)
	}
	if err != nil {
		p.logger.Error("failed to record retryable failure", "raw_message_id", raw.ID, "error", err)
		return Outcome{RawMessageID: raw.ID}, fmt.Errorf("mark raw message %s retryable: %w", raw.ID, err)
	}

	return p.finish(ctx, Outcome{RawMessageID: raw.ID, State: rawmessage.StateRetryableFailed, Error: &e}), nil
}

func (p *Processor) markFailed(ctx context.Context, raw *rawmessage.RawMessage, message string) (Outcome, error) {
	e := rawmessage.Error{Code: string(internal.ErrCodeIncompleteParse), Message: message}

	err := p.repo.MarkFailed(ctx, raw.ID, e)
	if errors.Is(err, internal.ErrAlreadyProcessed) {
		return p.lostRace(ctx, raw.ID)
	}
	if err != nil {
		return p.storeFailure(ctx, raw, "mark failed", err)
	}

	return p.finish(ctx, Outcome{RawMessageID: raw.ID, State: rawmessage.StatePermanentlyFailed, Error: &e}), nil
}

func (p *Processor) commit(ctx context.Context, raw *rawmessage.RawMessage, draft expense.Draft) (Outcome, error) {
	expenseID, err := p.committer.Commit(ctx, raw, draft)
	if errors.Is(err, internal.ErrAlreadyProcessed) {
		return p.lostRace(ctx, raw.ID)
	}
	if err != nil {
		return p.storeFailure(ctx, raw, "commit", err)
	}

	p.logger.Info("expense committed",
		"raw_message_id", raw.ID,
		"expense_id", expenseID,
		"user_id", raw.UserID,
		"amount", draft.Amount.StringFixed(2),
		"source", draft.Source)
	return p.finish(ctx, Outcome{RawMessageID: raw.ID, State: rawmessage.StateCommitted, ExpenseID: expenseID}), nil
}

// storeFailure records PROCESSING_ERROR if the store still accepts writes and
// hands the original error back so the delivery is retried.
func (p *Processor) storeFailure(ctx context.Context, raw *rawmessage.RawMessage, step string, cause error) (Outcome, error) {
	p.logger.Error("store write failed", "raw_message_id", raw.ID, "step", step, "error", cause)

	e := rawmessage.Error{Code: string(internal.ErrCodeProcessingError), Message: fmt.Sprintf("%s: %v", step, cause)}
	if err := p.repo.MarkRetryable(ctx, raw.ID, e); err != nil {
		p.logger.Warn("could not record processing error", "raw_message_id", raw.ID, "error", err)
	}

	return Outcome{RawMessageID: raw.ID, State: rawmessage.StateRetryableFailed, Error: &e},
		fmt.Errorf("%s raw message %s: %w", step, raw.ID, cause)
}

// lostRace re-reads the message another invocation settled so the outcome
// reports its actual state.
func (p *Processor) lostRace(ctx context.Context, id string) (Outcome, error) {
	p.logger.Info("raw message settled by a concurrent invocation", "raw_message_id", id)

	raw, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return Outcome{RawMessageID: id, State: rawmessage.StateDiscarded, Skipped: true}, nil
	}
	return skipped(raw), nil
}

func (p *Processor) finish(ctx context.Context, outcome Outcome) Outcome {
	if p.publisher == nil {
		return outcome
	}

	errorCode := ""
	if outcome.Error != nil {
		errorCode = outcome.Error.Code
	}
	event := events.NewRawMessageProcessedEvent(outcome.RawMessageID, string(outcome.State), outcome.ExpenseID, errorCode)
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish processed event", "raw_message_id", outcome.RawMessageID, "error", err)
	}
	return outcome
}

func skipped(raw *rawmessage.RawMessage) Outcome {
	outcome := Outcome{
		RawMessageID: raw.ID,
		State:        raw.State(),
		Error:        raw.Error,
		Skipped:      true,
	}
	if raw.ExpenseID != nil {
		outcome.ExpenseID = *raw.ExpenseID
	}
	return outcome
}
