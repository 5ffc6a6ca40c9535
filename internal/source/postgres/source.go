package postgres

import (
	"context"
	"errors"

	sourceDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/source"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) ListActive(ctx context.Context) ([]*sourceDatamodel.PaymentSource, error) {
	var items []*sourceDatamodel.PaymentSource
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&items).Error
	return items, err
}

// FindByLabel matches case-insensitively and returns nil when nothing matches.
func (r *SourceRepository) FindByLabel(ctx context.Context, label string) (*sourceDatamodel.PaymentSource, error) {
	var item sourceDatamodel.PaymentSource
	err := r.db.WithContext(ctx).Where("LOWER(label) = LOWER(?)", label).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *SourceRepository) Upsert(ctx context.Context, s *sourceDatamodel.PaymentSource) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "label"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "is_active", "updated_at"}),
	}).Create(s).Error
}

func (r *SourceRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&sourceDatamodel.PaymentSource{}).Error
}
