package rawmessage

import (
	"time"

	rawDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/rawmessage"
	"github.com/google/uuid"
)

// State is the position of a raw message in the trigger state machine.
// Processing only exists inside an invocation and Discarded messages are
// deleted, so neither is ever read back from the store.
type State string

const (
	StateCreated           State = "created"
	StateProcessing        State = "processing"
	StateDiscarded         State = "discarded"
	StateCommitted         State = "committed"
	StatePermanentlyFailed State = "permanently_failed"
	StateRetryableFailed   State = "retryable_failed"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateDiscarded, StateCommitted, StatePermanentlyFailed:
		return true
	}
	return false
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RawMessage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Sender     string    `json:"sender"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"receivedAt"`
	Processed  bool      `json:"processed"`
	ExpenseID  *string   `json:"expenseId,omitempty"`
	Error      *Error    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func New(userID, sender, message string, receivedAt time.Time) *RawMessage {
	return &RawMessage{
		ID:         uuid.NewString(),
		UserID:     userID,
		Sender:     sender,
		Message:    message,
		ReceivedAt: receivedAt.UTC(),
		Processed:  false,
	}
}

// State derives the state machine position from the persisted flags.
func (m *RawMessage) State() State {
	switch {
	case m.Processed && m.HasExpense():
		return StateCommitted
	case m.Processed:
		return StatePermanentlyFailed
	case m.Error != nil:
		return StateRetryableFailed
	default:
		return StateCreated
	}
}

func (m *RawMessage) HasExpense() bool {
	return m.ExpenseID != nil && *m.ExpenseID != ""
}

// Settled reports whether a trigger invocation must leave the message alone.
func (m *RawMessage) Settled() bool {
	return m.Processed || m.HasExpense()
}

func (m *RawMessage) OwnedBy(userID string) bool {
	return userID != "" && m.UserID == userID
}

func ToDataModel(m *RawMessage) *rawDatamodel.RawMessage {
	dm := &rawDatamodel.RawMessage{
		ID:         m.ID,
		UserID:     m.UserID,
		Sender:     m.Sender,
		Message:    m.Message,
		ReceivedAt: m.ReceivedAt,
		Processed:  m.Processed,
		ExpenseID:  m.ExpenseID,
		Attempts:   m.Attempts,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.Error != nil {
		code, msg := m.Error.Code, m.Error.Message
		dm.ErrorCode = &code
		dm.ErrorMessage = &msg
	}
	return dm
}

func FromDataModel(dm *rawDatamodel.RawMessage) *RawMessage {
	m := &RawMessage{
		ID:         dm.ID,
		UserID:     dm.UserID,
		Sender:     dm.Sender,
		Message:    dm.Message,
		ReceivedAt: dm.ReceivedAt,
		Processed:  dm.Processed,
		ExpenseID:  dm.ExpenseID,
		Attempts:   dm.Attempts,
		CreatedAt:  dm.CreatedAt,
		UpdatedAt:  dm.UpdatedAt,
	}
	if dm.ErrorCode != nil {
		m.Error = &Error{Code: *dm.ErrorCode}
		if dm.ErrorMessage != nil {
			m.Error.Message = *dm.ErrorMessage
		}
	}
	return m
}

func FromDataModelSlice(items []*rawDatamodel.RawMessage) []*RawMessage {
	result := make([]*RawMessage, len(items))
	for i, item := range items {
		result[i] = FromDataModel(item)
	}
	return result
}
