package rawmessage

import "time"

type RawMessage struct {
	ID           string    `gorm:"primaryKey;column:id"`
	UserID       string    `gorm:"column:user_id;not null;index"`
	Sender       string    `gorm:"column:sender;not null"`
	Message      string    `gorm:"column:message;not null"`
	ReceivedAt   time.Time `gorm:"column:received_at;not null"`
	Processed    bool      `gorm:"column:processed;not null;default:false;index"`
	ExpenseID    *string   `gorm:"column:expense_id"`
	ErrorCode    *string   `gorm:"column:error_code"`
	ErrorMessage *string   `gorm:"column:error_message"`
	Attempts     int       `gorm:"column:attempts;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RawMessage) TableName() string {
	return "raw_messages"
}
