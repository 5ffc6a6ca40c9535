package source

import (
	"errors"
	"strings"
	"time"

	sourceDatamodel "github.com/frahmantamala/sms-expense-pipeline/internal/core/datamodel/source"
)

type Kind string

const (
	KindBankAccount Kind = "bank_account"
	KindCreditCard  Kind = "credit_card"
	KindCash        Kind = "cash"
	KindWallet      Kind = "wallet"
	KindUPI         Kind = "upi"
	KindOther       Kind = "other"
)

var ErrUnknownSource = errors.New("unknown payment source")

// PaymentSource is one entry of the allow-list an expense source must match.
type PaymentSource struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	Kind      Kind      `json:"kind"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSources is the catalogue the seed command installs.
var DefaultSources = []PaymentSource{
	{Label: "HDFC Bank account", Kind: KindBankAccount},
	{Label: "HDFC Credit Card", Kind: KindCreditCard},
	{Label: "ICICI Bank Account", Kind: KindBankAccount},
	{Label: "ICICI Credit card", Kind: KindCreditCard},
	{Label: "Cash", Kind: KindCash},
	{Label: "Paytm Wallet", Kind: KindWallet},
	{Label: "PhonePe", Kind: KindUPI},
	{Label: "Google Pay", Kind: KindUPI},
}

// Matches compares labels ignoring case and surrounding whitespace.
func (s *PaymentSource) Matches(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), s.Label)
}

func New(label string, kind Kind) *PaymentSource {
	now := time.Now()
	return &PaymentSource{
		Label:     strings.TrimSpace(label),
		Kind:      kind,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func ToDataModel(s *PaymentSource) *sourceDatamodel.PaymentSource {
	return &sourceDatamodel.PaymentSource{
		ID:        s.ID,
		Label:     s.Label,
		Kind:      string(s.Kind),
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func FromDataModel(s *sourceDatamodel.PaymentSource) *PaymentSource {
	return &PaymentSource{
		ID:        s.ID,
		Label:     s.Label,
		Kind:      Kind(s.Kind),
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
