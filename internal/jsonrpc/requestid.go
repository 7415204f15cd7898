package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a request correlator: a JSON string or number. It is echoed
// verbatim into the terminal response, never regenerated or coerced, so the
// underlying representation distinguishes integers from floats and strings.
type RequestID struct {
	value any
}

// NewRequestID builds an id from a string or numeric value. Unsupported
// types yield a null id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: int64(v)}
	case int64, float64:
		return &RequestID{value: v}
	default:
		return &RequestID{value: nil}
	}
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// String renders the id for log correlation. Null ids render empty.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if s, ok := id.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id.value)
}

// MarshalJSON emits the id exactly as received: string, number, or null.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts a string, a number, or null. Integral numbers are
// kept as int64 so they re-serialize without a decimal point.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		id.value = nil
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("request id must be a string or number, got %s", string(data))
}
