package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	rawDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"gorm.io/gorm"
)

type RawMessageRepository struct {
	db *gorm.DB
}

func NewRawMessageRepository(db *gorm.DB) *RawMessageRepository {
	return &RawMessageRepository{db: db}
}

func (r *RawMessageRepository) Create(ctx context.Context, m *rawmessage.RawMessage) error {
	dm := rawmessage.ToDataModel(m)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	m.CreatedAt = dm.CreatedAt
	m.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *RawMessageRepository) GetByID(ctx context.Context, id string) (*rawmessage.RawMessage, error) {
	var dm rawDatamodel.RawMessage
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRawMessageNotFound
		}
		return nil, err
	}
	return rawmessage.FromDataModel(&dm), nil
}

func (r *RawMessageRepository) ListByUser(ctx context.Context, userID string, filter rawmessage.ListFilter) ([]*rawmessage.RawMessage, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)

	switch filter.State {
	case rawmessage.StateCreated:
		query = query.Where("processed = ? AND error_code IS NULL", false)
	case rawmessage.StateRetryableFailed:
		query = query.Where("processed = ? AND error_code IS NOT NULL", false)
	case rawmessage.StatePermanentlyFailed:
		query = query.Where("processed = ? AND expense_id IS NULL", true)
	case rawmessage.StateCommitted:
		query = query.Where("processed = ? AND expense_id IS NOT NULL", true)
	}

	var items []*rawDatamodel.RawMessage
	err := query.
		Order("received_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return rawmessage.FromDataModelSlice(items), nil
}

// ListReplayable returns unprocessed messages untouched since updatedBefore,
// oldest first, skipping those that used up their attempts.
func (r *RawMessageRepository) ListReplayable(ctx context.Context, updatedBefore time.Time, maxAttempts, limit int) ([]*rawmessage.RawMessage, error) {
	query := r.db.WithContext(ctx).
		Where("processed = ? AND updated_at < ?", false, updatedBefore)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}

	var items []*rawDatamodel.RawMessage
	err := query.Order("updated_at ASC").Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return rawmessage.FromDataModelSlice(items), nil
}

func (r *RawMessageRepository) MarkRetryable(ctx context.Context, id string, e rawmessage.Error) error {
	return r.updateUnprocessed(ctx, id, map[string]interface{}{
		"error_code":    e.Code,
		"error_message": e.Message,
		"attempts":      gorm.Expr("attempts + 1"),
		"updated_at":    time.Now().UTC(),
	})
}

func (r *RawMessageRepository) MarkFailed(ctx context.Context, id string, e rawmessage.Error) error {
	return r.updateUnprocessed(ctx, id, map[string]interface{}{
		"processed":     true,
		"error_code":    e.Code,
		"error_message": e.Message,
		"updated_at":    time.Now().UTC(),
	})
}

func (r *RawMessageRepository) MarkCommitted(ctx context.Context, id, expenseID string) error {
	return MarkCommitted(r.db.WithContext(ctx), id, expenseID)
}

func (r *RawMessageRepository) DeleteUnprocessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND processed = ?", id, false).
		Delete(&rawDatamodel.RawMessage{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrAlreadyProcessed
	}
	return nil
}

func (r *RawMessageRepository) updateUnprocessed(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateUnprocessed(r.db.WithContext(ctx), id, updates)
}

// MarkCommitted flags the message processed with its expense id. It runs on
// whatever handle it is given so the commit transaction can reuse it.
func MarkCommitted(db *gorm.DB, id, expenseID string) error {
	return updateUnprocessed(db, id, map[string]interface{}{
		"processed":     true,
		"expense_id":    expenseID,
		"error_code":    nil,
		"error_message": nil,
		"updated_at":    time.Now().UTC(),
	})
}

func updateUnprocessed(db *gorm.DB, id string, updates map[string]interface{}) error {
	result := db.Model(&rawDatamodel.RawMessage{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrAlreadyProcessed
	}
	return nil
}
