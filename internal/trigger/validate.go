package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/classifier"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/common/validation"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	"github.com/shopspring/decimal"
)

const (
	DefaultAmountMin     = 0.01
	DefaultAmountMax     = 999999999.99
	DefaultNoteMaxLength = 500 // width of expenses.note
)

// DefaultCategoryMaxLength matches the width of expenses.category.
const DefaultCategoryMaxLength = expense.MaxCategoryLength

var transactionDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type SourceResolver interface {
	Resolve(ctx context.Context, label string) (string, error)
}

type Limits struct {
	AmountMin         float64
	AmountMax         float64
	NoteMaxLength     int
	CategoryMaxLength int
}

func (l Limits) withDefaults() Limits {
	if l.AmountMin <= 0 {
		l.AmountMin = DefaultAmountMin
	}
	if l.AmountMax <= 0 {
		l.AmountMax = DefaultAmountMax
	}
	if l.NoteMaxLength <= 0 || l.NoteMaxLength > DefaultNoteMaxLength {
		l.NoteMaxLength = DefaultNoteMaxLength
	}
	if l.CategoryMaxLength <= 0 || l.CategoryMaxLength > expense.MaxCategoryLength {
		l.CategoryMaxLength = DefaultCategoryMaxLength
	}
	return l
}

// Validator turns a transaction verdict into an expense draft. Field problems
// come back as *internal.AppError; any other error means the check itself
// could not run.
type Validator struct {
	limits  Limits
	sources SourceResolver
}

func NewValidator(limits Limits, sources SourceResolver) *Validator {
	return &Validator{
		limits:  limits.withDefaults(),
		sources: sources,
	}
}

func (v *Validator) Draft(ctx context.Context, raw *rawmessage.RawMessage, result *classifier.Result) (expense.Draft, error) {
	validator := validation.NewValidator()
	validator.Field("amount", result.Amount).
		Required().
		Finite().
		MinFloat(v.limits.AmountMin, internal.ErrCodeAmountTooLow).
		MaxFloat(v.limits.AmountMax, internal.ErrCodeAmountTooHigh)
	validator.Field("category", result.Category).Required().MaxLength(v.limits.CategoryMaxLength)
	validator.Field("note", result.Note).Required().MaxLength(v.limits.NoteMaxLength)
	validator.Field("source", result.Source).Required()

	if appErr := validator.Validate(); appErr != nil {
		return expense.Draft{}, appErr
	}

	label, err := v.sources.Resolve(ctx, *result.Source)
	if err != nil {
		if errors.Is(err, source.ErrUnknownSource) {
			return expense.Draft{}, internal.NewValidationFieldError("source",
				fmt.Sprintf("source %q is not a known payment source", strings.TrimSpace(*result.Source)),
				internal.ErrCodeInvalidSource)
		}
		return expense.Draft{}, fmt.Errorf("resolve source: %w", err)
	}

	return expense.Draft{
		Amount:   decimal.NewFromFloat(*result.Amount),
		Category: strings.TrimSpace(*result.Category),
		Note:     strings.TrimSpace(*result.Note),
		Source:   label,
		Date:     TransactionDate(result.TransactionDate, raw.ReceivedAt),
	}, nil
}

// TransactionDate parses the classifier date, falling back to when the SMS
// arrived.
func TransactionDate(value *string, receivedAt time.Time) time.Time {
	if value == nil {
		return receivedAt.UTC()
	}
	s := strings.TrimSpace(*value)
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return receivedAt.UTC()
}
