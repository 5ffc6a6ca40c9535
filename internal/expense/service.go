package expense

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id string) (*Expense, error)
	FindByRawMessageID(ctx context.Context, rawMessageID string) (*Expense, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Expense, error)
	Update(ctx context.Context, id string, changes Changes) (*Expense, error)
}

// SourceResolver canonicalizes a payment source label.
type SourceResolver interface {
	Resolve(ctx context.Context, label string) (string, error)
}

type Service struct {
	repo          RepositoryAPI
	sources       SourceResolver
	noteMaxLength int
	logger        *slog.Logger
}

func NewService(repo RepositoryAPI, sources SourceResolver, noteMaxLength int, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		sources:       sources,
		noteMaxLength: noteMaxLength,
		logger:        logger,
	}
}

func (s *Service) Get(ctx context.Context, userID, id string) (*Expense, error) {
	exp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, internal.ErrExpenseNotFound) {
			s.logger.Error("failed to get expense", "error", err, "expense_id", id)
		}
		return nil, err
	}

	if !exp.OwnedBy(userID) {
		s.logger.Warn("expense access denied", "expense_id", id, "user_id", userID)
		return nil, internal.ErrExpenseNotFound
	}
	return exp, nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Expense, error) {
	if userID == "" {
		return nil, internal.ErrAuthRequired
	}

	expenses, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "user_id", userID)
		return nil, err
	}
	return expenses, nil
}

// Update applies a user edit. Source goes through the same allow-list as the
// pipeline and expense_type is stored lower-case.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateExpenseRequest) (*Expense, error) {
	if appErr := req.Validate(s.noteMaxLength); appErr != nil {
		return nil, appErr
	}

	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	changes := Changes{
		Category: trimmed(req.Category),
		Note:     trimmed(req.Note),
	}

	if req.ExpenseType != nil {
		t := strings.ToLower(strings.TrimSpace(*req.ExpenseType))
		changes.ExpenseType = &t
	}

	if req.Source != nil {
		label, err := s.sources.Resolve(ctx, *req.Source)
		if err != nil {
			if errors.Is(err, source.ErrUnknownSource) {
				return nil, internal.NewValidationFieldError("source", err.Error(), internal.ErrCodeInvalidSource)
			}
			return nil, internal.NewInternalError("failed to resolve payment source", err)
		}
		changes.Source = &label
	}

	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		s.logger.Error("failed to update expense", "error", err, "expense_id", id)
		return nil, err
	}

	s.logger.Info("expense updated", "expense_id", id, "user_id", userID)
	return updated, nil
}
