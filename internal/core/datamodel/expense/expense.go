package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID           string          `gorm:"primaryKey;column:id"`
	UserID       string          `gorm:"column:user_id;not null;index"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Category     string          `gorm:"column:category;not null"`
	Note         string          `gorm:"column:note;not null"`
	Source       string          `gorm:"column:source;not null"`
	Date         time.Time       `gorm:"column:date;not null"`
	Sender       string          `gorm:"column:sender"`
	Message      string          `gorm:"column:message"`
	ReceivedAt   time.Time       `gorm:"column:received_at"`
	ExpenseType  string          `gorm:"column:expense_type;not null;default:personal"`
	RawMessageID string          `gorm:"column:raw_message_id;not null;uniqueIndex"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    *time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Expense) TableName() string {
	return "expenses"
}
