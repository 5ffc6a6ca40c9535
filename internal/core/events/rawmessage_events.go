package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRawMessageCreated   = "rawmessage.created"
	EventTypeRawMessageProcessed = "rawmessage.processed"
)

type RawMessageCreatedEvent struct {
	BaseEvent
	RawMessageID string `json:"raw_message_id"`
	UserID       string `json:"user_id"`
}

func NewRawMessageCreatedEvent(rawMessageID, userID string) *RawMessageCreatedEvent {
	return &RawMessageCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRawMessageCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"raw_message_id": rawMessageID,
				"user_id":        userID,
			},
		},
		RawMessageID: rawMessageID,
		UserID:       userID,
	}
}

// RawMessageProcessedEvent reports the state a trigger invocation left a raw
// message in. ExpenseID and ErrorCode are empty unless relevant.
type RawMessageProcessedEvent struct {
	BaseEvent
	RawMessageID string `json:"raw_message_id"`
	State        string `json:"state"`
	ExpenseID    string `json:"expense_id,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

func NewRawMessageProcessedEvent(rawMessageID, state, expenseID, errorCode string) *RawMessageProcessedEvent {
	return &RawMessageProcessedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRawMessageProcessed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"raw_message_id": rawMessageID,
				"state":          state,
				"expense_id":     expenseID,
				"error_code":     errorCode,
			},
		},
		RawMessageID: rawMessageID,
		State:        state,
		ExpenseID:    expenseID,
		ErrorCode:    errorCode,
	}
}
