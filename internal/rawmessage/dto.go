package rawmessage

import (
	errors "github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/common/validation"
)

const (
	MaxSenderLength  = 255
	MaxMessageLength = 10000
)

// IngestRequest is the body posted by the device forwarder. UID is the
// caller's claimed identity and is only compared, never trusted.
type IngestRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	UID     string `json:"uid,omitempty"`
}

func (r IngestRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("sender", r.Sender).Required().MaxLength(MaxSenderLength)
	v.Field("message", r.Message).Required().MaxLength(MaxMessageLength)
	return v.Validate()
}

// ListFilter narrows raw message listings by derived state.
type ListFilter struct {
	State  State
	Limit  int
	Offset int
}

func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type ListResponse struct {
	RawMessages []*RawMessage `json:"rawMessages"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}

// ParseStateFilter maps the list endpoint's state query onto a State. The
// short operator names and the full state names are both accepted.
func ParseStateFilter(s string) (State, bool) {
	switch s {
	case "":
		return "", true
	case "pending", string(StateCreated):
		return StateCreated, true
	case "retryable", string(StateRetryableFailed):
		return StateRetryableFailed, true
	case "failed", string(StatePermanentlyFailed):
		return StatePermanentlyFailed, true
	case string(StateCommitted):
		return StateCommitted, true
	}
	return "", false
}

type ReplayResponse struct {
	RawMessageID string `json:"rawMessageId"`
	State        State  `json:"state"`
}
