// Package classifier turns a bank SMS into structured transaction fields by
// asking an external language model. Backends share the prompt and the
// response schema; only the transport differs.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	DefaultOpenRouterModel = "deepseek/deepseek-v3.2-exp"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultTitle           = "SMS Expense Tracker"

	Temperature = 0.1
	MaxTokens   = 1000
)

type Input struct {
	Sender     string
	Message    string
	ReceivedAt time.Time
	UserID     string
}

// Result is the classifier verdict. Transaction fields are nil when the
// model left them out; ParseResult guarantees they are set whenever
// IsTransaction is true.
type Result struct {
	IsTransaction   bool     `json:"isTransaction"`
	Amount          *float64 `json:"amount,omitempty"`
	TransactionDate *string  `json:"transactionDate,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Note            *string  `json:"note,omitempty"`
	Source          *string  `json:"source,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, in Input) (*Result, error)
}

type Config struct {
	Provider string
	APIURL   string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Referer  string
	Title    string
	// Sources are the labels the prompt asks the model to choose from.
	Sources []string
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Classifier, error) {
	switch cfg.Provider {
	case ProviderOpenRouter, "":
		return NewOpenRouterClient(cfg, logger), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// TransportError covers network failures, timeouts and non-2xx answers.
// StatusCode is zero when no response arrived.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("classifier transport: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("classifier transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var ErrEmptyResponse = errors.New("classifier returned no content")

// SchemaParseError means the content was not exactly one JSON object.
type SchemaParseError struct {
	Content string
	Err     error
}

func (e *SchemaParseError) Error() string {
	return fmt.Sprintf("invalid JSON response from classifier: %v", e.Err)
}

func (e *SchemaParseError) Unwrap() error {
	return e.Err
}

// SchemaValidationError means the JSON object lacks a required field or
// carries one of the wrong type.
type SchemaValidationError struct {
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("classifier response field %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether a Classify error may succeed on a later
// attempt. Only schema validation failures are final.
func IsRetryable(err error) bool {
	var validationErr *SchemaValidationError
	return err != nil && !errors.As(err, &validationErr)
}
