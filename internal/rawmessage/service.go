package rawmessage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/events"
)

// RepositoryAPI is the Message Store. Every mutation after Create is
// conditional on processed = false and reports internal.ErrAlreadyProcessed
// when the condition does not hold.
type RepositoryAPI interface {
	Create(ctx context.Context, m *RawMessage) error
	GetByID(ctx context.Context, id string) (*RawMessage, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*RawMessage, error)
	ListReplayable(ctx context.Context, updatedBefore time.Time, maxAttempts, limit int) ([]*RawMessage, error)
	MarkRetryable(ctx context.Context, id string, e Error) error
	MarkFailed(ctx context.Context, id string, e Error) error
	MarkCommitted(ctx context.Context, id, expenseID string) error
	DeleteUnprocessed(ctx context.Context, id string) error
}

type Service struct {
	repo      RepositoryAPI
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest stores one raw message for the authenticated caller. The caller id
// always wins over the uid claimed in the body.
func (s *Service) Ingest(ctx context.Context, callerID string, req IngestRequest) (*RawMessage, error) {
	if callerID == "" {
		return nil, internal.ErrAuthRequired
	}

	if req.UID != "" && req.UID != callerID {
		s.logger.Warn("UID mismatch detected", "provided_uid", req.UID, "auth_uid", callerID)
		return nil, internal.ErrIdentityMismatch
	}

	if err := req.Validate(); err != nil {
		s.logger.Info("raw message rejected", "user_id", callerID, "error", err.GetDetailedMessage())
		return nil, err
	}

	msg := New(callerID, req.Sender, req.Message, s.now())
	if err := s.repo.Create(ctx, msg); err != nil {
		s.logger.Error("failed to store raw message", "error", err, "user_id", callerID)
		return nil, internal.NewInternalError("failed to store raw message", err)
	}

	s.logger.Info("raw message stored",
		"raw_message_id", msg.ID,
		"user_id", msg.UserID,
		"sender", msg.Sender)

	if s.publisher != nil {
		if err := s.publisher.PublishSync(ctx, events.NewRawMessageCreatedEvent(msg.ID, msg.UserID)); err != nil {
			// the replay job enqueues anything still unprocessed after its grace period
			s.logger.Warn("raw message created event not delivered", "raw_message_id", msg.ID, "error", err)
		}
	}

	return msg, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*RawMessage, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, internal.ErrRawMessageNotFound) {
			s.logger.Error("failed to get raw message", "error", err, "raw_message_id", id)
		}
		return nil, err
	}

	if !msg.OwnedBy(userID) {
		s.logger.Warn("raw message access denied", "raw_message_id", id, "user_id", userID)
		return nil, internal.ErrRawMessageNotFound
	}

	return msg, nil
}

func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]*RawMessage, error) {
	if userID == "" {
		return nil, internal.ErrAuthRequired
	}

	msgs, err := s.repo.ListByUser(ctx, userID, filter.Normalize())
	if err != nil {
		s.logger.Error("failed to list raw messages", "error", err, "user_id", userID)
		return nil, err
	}
	return msgs, nil
}
