package expense

import (
	"time"

	expenseDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultExpenseType = "personal"

// MaxCategoryLength is the width of the expenses.category column.
const MaxCategoryLength = 255

// ExpenseTypes lists the accepted values for expense_type.
var ExpenseTypes = []string{
	"personal",
	"family",
	"shared",
	"money_lend",
	"business",
	"investment",
}

type Expense struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	Note         string          `json:"note"`
	Source       string          `json:"source"`
	Date         time.Time       `json:"date"`
	Sender       string          `json:"sender"`
	Message      string          `json:"message"`
	ReceivedAt   time.Time       `json:"receivedAt"`
	ExpenseType  string          `json:"expense_type"`
	RawMessageID string          `json:"rawMessageId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// Draft holds classifier fields that already passed validation.
type Draft struct {
	Amount   decimal.Decimal
	Category string
	Note     string
	Source   string
	Date     time.Time
}

// NewFromRawMessage builds the expense a committed raw message produces.
// Identity and provenance always come from the raw message.
func NewFromRawMessage(raw *rawmessage.RawMessage, d Draft) *Expense {
	return &Expense{
		ID:           uuid.NewString(),
		UserID:       raw.UserID,
		Amount:       d.Amount.Round(2),
		Category:     d.Category,
		Note:         d.Note,
		Source:       d.Source,
		Date:         d.Date.UTC(),
		Sender:       raw.Sender,
		Message:      raw.Message,
		ReceivedAt:   raw.ReceivedAt,
		ExpenseType:  DefaultExpenseType,
		RawMessageID: raw.ID,
		CreatedAt:    time.Now().UTC(),
	}
}

func (e *Expense) OwnedBy(userID string) bool {
	return userID != "" && e.UserID == userID
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	return &expenseDatamodel.Expense{
		ID:           e.ID,
		UserID:       e.UserID,
		Amount:       e.Amount,
		Category:     e.Category,
		Note:         e.Note,
		Source:       e.Source,
		Date:         e.Date,
		Sender:       e.Sender,
		Message:      e.Message,
		ReceivedAt:   e.ReceivedAt,
		ExpenseType:  e.ExpenseType,
		RawMessageID: e.RawMessageID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func FromDataModel(e *expenseDatamodel.Expense) *Expense {
	return &Expense{
		ID:           e.ID,
		UserID:       e.UserID,
		Amount:       e.Amount,
		Category:     e.Category,
		Note:         e.Note,
		Source:       e.Source,
		Date:         e.Date,
		Sender:       e.Sender,
		Message:      e.Message,
		ReceivedAt:   e.ReceivedAt,
		ExpenseType:  e.ExpenseType,
		RawMessageID: e.RawMessageID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func FromDataModelSlice(expenses []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(expenses))
	for i, e := range expenses {
		result[i] = FromDataModel(e)
	}
	return result
}
