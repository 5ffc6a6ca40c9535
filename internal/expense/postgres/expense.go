package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	expenseDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"gorm.io/gorm"
)

// ExpenseRepository implements expense.RepositoryAPI using GORM
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*expense.Expense, error) {
	var dm expenseDatamodel.Expense
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return expense.FromDataModel(&dm), nil
}

func (r *ExpenseRepository) FindByRawMessageID(ctx context.Context, rawMessageID string) (*expense.Expense, error) {
	return FindByRawMessageID(r.db.WithContext(ctx), rawMessageID)
}

func (r *ExpenseRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*expense.Expense, error) {
	var items []*expenseDatamodel.Expense
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return expense.FromDataModelSlice(items), nil
}

func (r *ExpenseRepository) Update(ctx context.Context, id string, changes expense.Changes) (*expense.Expense, error) {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if changes.Category != nil {
		updates["category"] = *changes.Category
	}
	if changes.Note != nil {
		updates["note"] = *changes.Note
	}
	if changes.Source != nil {
		updates["source"] = *changes.Source
	}
	if changes.ExpenseType != nil {
		updates["expense_type"] = *changes.ExpenseType
	}

	result := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, internal.ErrExpenseNotFound
	}
	return r.GetByID(ctx, id)
}

// FindByRawMessageID returns nil when the raw message has no expense yet. It
// takes the handle explicitly so a transaction can call it.
func FindByRawMessageID(db *gorm.DB, rawMessageID string) (*expense.Expense, error) {
	var dm expenseDatamodel.Expense
	err := db.Where("raw_message_id = ?", rawMessageID).First(&dm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return expense.FromDataModel(&dm), nil
}

// Insert writes a new expense. A second expense for the same raw message
// fails with gorm.ErrDuplicatedKey when the handle translates errors.
func Insert(db *gorm.DB, e *expense.Expense) error {
	dm := expense.ToDataModel(e)
	if err := db.Create(dm).Error; err != nil {
		return err
	}
	e.CreatedAt = dm.CreatedAt
	return nil
}
