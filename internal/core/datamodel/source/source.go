package source

import "time"

type PaymentSource struct {
	ID        int64     `gorm:"primaryKey"`
	Label     string    `gorm:"column:label;uniqueIndex;not null"`
	Kind      string    `gorm:"column:kind;not null"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentSource) TableName() string {
	return "payment_sources"
}
