package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// StripCodeFence removes a surrounding ``` or ```json markdown fence.
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResult decodes model output into a Result. The content must hold
// exactly one JSON object once any fence is stripped.
func ParseResult(content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyResponse
	}

	clean := StripCodeFence(content)
	fields, err := decodeSingleObject(clean)
	if err != nil {
		return nil, &SchemaParseError{Content: content, Err: err}
	}

	raw, ok := fields["isTransaction"]
	if !ok || isNull(raw) {
		return nil, &SchemaValidationError{Field: "isTransaction", Reason: "is required"}
	}

	result := &Result{}
	if err := json.Unmarshal(raw, &result.IsTransaction); err != nil {
		return nil, &SchemaValidationError{Field: "isTransaction", Reason: "must be a boolean"}
	}

	if err := decodeOptional(fields, "amount", &result.Amount); err != nil {
		return nil, err
	}
	if err := decodeOptional(fields, "confidence", &result.Confidence); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		dst  **string
	}{
		{"transactionDate", &result.TransactionDate},
		{"category", &result.Category},
		{"note", &result.Note},
		{"source", &result.Source},
	} {
		if err := decodeOptional(fields, f.name, f.dst); err != nil {
			return nil, err
		}
	}

	if !result.IsTransaction {
		return result, nil
	}

	if result.Amount == nil || *result.Amount == 0 {
		return nil, &SchemaValidationError{Field: "amount", Reason: "is required for a transaction"}
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"category", result.Category},
		{"note", result.Note},
		{"source", result.Source},
	} {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			return nil, &SchemaValidationError{Field: f.name, Reason: "is required for a transaction"}
		}
	}

	return result, nil
}

func decodeSingleObject(s string) (map[string]json.RawMessage, error) {
	if !strings.HasPrefix(s, "{") {
		return nil, errors.New("content is not a JSON object")
	}

	dec := json.NewDecoder(strings.NewReader(s))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after JSON object")
	}
	return fields, nil
}

func decodeOptional[T any](fields map[string]json.RawMessage, name string, dst **T) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return &SchemaValidationError{Field: name, Reason: "has the wrong type"}
	}
	*dst = &v
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
