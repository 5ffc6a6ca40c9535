package expense

import (
	"strings"

	errors "github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/common/validation"
)

// UpdateExpenseRequest is a partial edit; nil fields stay unchanged.
type UpdateExpenseRequest struct {
	Category    *string `json:"category,omitempty"`
	Note        *string `json:"note,omitempty"`
	Source      *string `json:"source,omitempty"`
	ExpenseType *string `json:"expense_type,omitempty"`
}

func (r UpdateExpenseRequest) IsEmpty() bool {
	return r.Category == nil && r.Note == nil && r.Source == nil && r.ExpenseType == nil
}

func (r UpdateExpenseRequest) Validate(noteMaxLength int) *errors.AppError {
	if r.IsEmpty() {
		return errors.NewValidationError("at least one field must be provided", errors.ErrCodeValidationFailed)
	}

	v := validation.NewValidator()
	if r.Category != nil {
		v.Field("category", r.Category).Required().MaxLength(MaxCategoryLength)
	}
	if r.Note != nil {
		v.Field("note", r.Note).Required().MaxLength(noteMaxLength)
	}
	if r.Source != nil {
		v.Field("source", r.Source).Required()
	}
	if r.ExpenseType != nil {
		v.Field("expense_type", r.ExpenseType).Required().OneOf(ExpenseTypes, errors.ErrCodeInvalidType)
	}
	return v.Validate()
}

// Changes is the column set an edit writes.
type Changes struct {
	Category    *string
	Note        *string
	Source      *string
	ExpenseType *string
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

type ListResponse struct {
	Expenses []*Expense `json:"expenses"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
