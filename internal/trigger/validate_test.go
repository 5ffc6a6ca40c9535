package trigger_test

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/classifier"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type staticResolver map[string]string

func (r staticResolver) Resolve(ctx context.Context, label string) (string, error) {
	if canonical, ok := r[label]; ok {
		return canonical, nil
	}
	return "", source.ErrUnknownSource
}

var _ = Describe("Validator", func() {
	var (
		validator  *trigger.Validator
		raw        *rawmessage.RawMessage
		receivedAt time.Time
	)

	BeforeEach(func() {
		validator = trigger.NewValidator(trigger.Limits{NoteMaxLength: 10}, staticResolver{"cash": "Cash"})
		receivedAt = time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)
		raw = rawmessage.New("user-1", "HDFCBK", "debited", receivedAt)
	})

	result := func(amount float64, note string) *classifier.Result {
		return &classifier.Result{
			IsTransaction: true,
			Amount:        floatPtr(amount),
			Category:      strPtr("  Food "),
			Note:          strPtr(note),
			Source:        strPtr("cash"),
		}
	}

	It("builds a draft with trimmed fields and the canonical source", func() {
		draft, err := validator.Draft(context.Background(), raw, result(12.345, " Tea "))
		Expect(err).NotTo(HaveOccurred())
		Expect(draft.Category).To(Equal("Food"))
		Expect(draft.Note).To(Equal("Tea"))
		Expect(draft.Source).To(Equal("Cash"))
		Expect(draft.Amount.InexactFloat64()).To(BeNumerically("~", 12.345))
		Expect(draft.Date).To(BeTemporally("==", receivedAt))
	})

	It("rejects non-finite amounts", func() {
		_, err := validator.Draft(context.Background(), raw, result(math.Inf(1), "Tea"))
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.GetDetailedMessage()).To(ContainSubstring("finite"))
	})

	It("rejects notes over the configured length", func() {
		_, err := validator.Draft(context.Background(), raw, result(10, "a very long note"))
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.GetDetailedMessage()).To(ContainSubstring("must not exceed 10 characters"))
	})

	It("rejects categories wider than the expense column", func() {
		r := result(10, "Tea")
		r.Category = strPtr(strings.Repeat("x", expense.MaxCategoryLength+1))
		_, err := validator.Draft(context.Background(), raw, r)

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		details := appErr.Details.(internal.ValidationErrors)
		Expect(details.Errors[0].Field).To(Equal("category"))
	})

	It("caps the category length at the column width", func() {
		wide := trigger.NewValidator(trigger.Limits{CategoryMaxLength: 1000}, staticResolver{"cash": "Cash"})
		r := result(10, "Tea")
		r.Category = strPtr(strings.Repeat("x", expense.MaxCategoryLength+1))
		_, err := wide.Draft(context.Background(), raw, r)
		_, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
	})

	It("reports unknown sources as a field error", func() {
		r := result(10, "Tea")
		r.Source = strPtr("Barter")
		_, err := validator.Draft(context.Background(), raw, r)

		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		details := appErr.Details.(internal.ValidationErrors)
		Expect(details.Errors[0].Field).To(Equal("source"))
		Expect(details.Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidSource)))
	})

	It("collects every missing field", func() {
		_, err := validator.Draft(context.Background(), raw, &classifier.Result{IsTransaction: true})
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Details.(internal.ValidationErrors).Errors).To(HaveLen(4))
	})
})

var _ = Describe("TransactionDate", func() {
	receivedAt := time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)

	DescribeTable("parses the classifier date",
		func(value *string, expected time.Time) {
			Expect(trigger.TransactionDate(value, receivedAt)).To(BeTemporally("==", expected))
		},
		Entry("missing", nil, receivedAt),
		Entry("RFC3339 with millis", strPtr("2024-03-10T00:00:00.000Z"), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		Entry("RFC3339 with offset", strPtr("2024-03-10T10:00:00+05:30"), time.Date(2024, 3, 10, 4, 30, 0, 0, time.UTC)),
		Entry("local timestamp", strPtr("2024-03-10T18:45:00"), time.Date(2024, 3, 10, 18, 45, 0, 0, time.UTC)),
		Entry("date only", strPtr("2024-03-10"), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		Entry("unparseable", strPtr("12-03-24"), receivedAt),
	)
})
