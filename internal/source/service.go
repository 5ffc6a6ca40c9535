package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sourceDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/source"
)

type RepositoryAPI interface {
	ListActive(ctx context.Context) ([]*sourceDatamodel.PaymentSource, error)
	FindByLabel(ctx context.Context, label string) (*sourceDatamodel.PaymentSource, error)
	Upsert(ctx context.Context, s *sourceDatamodel.PaymentSource) error
	DeleteAll(ctx context.Context) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Resolve maps a free-form label onto the canonical label of an active
// source. Unknown or inactive labels yield ErrUnknownSource; any other error
// comes from the store.
func (s *Service) Resolve(ctx context.Context, label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrUnknownSource
	}

	dm, err := s.repo.FindByLabel(ctx, label)
	if err != nil {
		s.logger.Error("failed to look up payment source", "label", label, "error", err)
		return "", err
	}
	if dm == nil || !dm.IsActive {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, label)
	}
	return dm.Label, nil
}

func (s *Service) ListActive(ctx context.Context) ([]SourceResponse, error) {
	items, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to get payment sources from repository", "error", err)
		return nil, err
	}

	responses := make([]SourceResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, SourceResponse{Label: item.Label, Kind: Kind(item.Kind)})
	}

	s.logger.Debug("retrieved payment sources", "count", len(responses))
	return responses, nil
}

// Seed installs the given catalogue, optionally wiping the table first.
// Existing labels are reactivated rather than duplicated.
func (s *Service) Seed(ctx context.Context, sources []PaymentSource, clear bool) (int, error) {
	if clear {
		if err := s.repo.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("clear payment sources: %w", err)
		}
		s.logger.Info("cleared payment sources")
	}

	for _, src := range sources {
		if err := s.repo.Upsert(ctx, ToDataModel(New(src.Label, src.Kind))); err != nil {
			return 0, fmt.Errorf("seed payment source %q: %w", src.Label, err)
		}
		s.logger.Info("seeded payment source", "label", src.Label, "kind", src.Kind)
	}
	return len(sources), nil
}
