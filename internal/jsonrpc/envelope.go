// Package jsonrpc implements the protocol envelope codec: decoding inbound
// JSON-RPC 2.0 envelopes, building responses, and preserving request ids
// verbatim across the exchange.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC version marker every envelope carries.
const ProtocolVersion = "2.0"

// Envelope is a protocol envelope in either direction. A request carries
// Method and optionally Params and ID; a response carries exactly one of
// Result or Error plus the id of the request it terminates. The ID field is
// marshalled unconditionally so that error envelopes for undecodable
// requests serialize as "id":null.
type Envelope struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Error is the error member of a response envelope.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Decode parses raw bytes into a validated envelope. The returned error
// carries no recoverable request id: a malformed body means the id cannot be
// trusted, so the caller must respond with id null.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if env.JSONRPCVersion != ProtocolVersion {
		return nil, fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, env.JSONRPCVersion)
	}

	hasMethod := env.Method != ""
	hasResult := len(env.Result) > 0
	hasError := env.Error != nil
	switch {
	case hasMethod && (hasResult || hasError):
		return nil, fmt.Errorf("request envelope cannot carry result or error")
	case !hasMethod && hasResult && hasError:
		return nil, fmt.Errorf("response envelope cannot carry both result and error")
	case !hasMethod && !hasResult && !hasError:
		return nil, fmt.Errorf("envelope carries neither method nor result nor error")
	}
	return &env, nil
}

// Encode serializes the envelope to its wire form.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// IsRequest reports whether the envelope is a request expecting a terminal
// response (it has a method and a non-null id).
func (e *Envelope) IsRequest() bool {
	return e.Method != "" && !e.ID.IsNil()
}

// IsNotification reports whether the envelope is a fire-and-forget
// notification (method present, id absent or null).
func (e *Envelope) IsNotification() bool {
	return e.Method != "" && e.ID.IsNil()
}

// NewResult builds a successful response envelope echoing the given id.
func NewResult(id *RequestID, result any) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Envelope{JSONRPCVersion: ProtocolVersion, Result: raw, ID: id}, nil
}

// NewError builds an error response envelope. A nil id serializes as
// "id":null per the wire format for rejections with no recoverable id.
func NewError(id *RequestID, code ErrorCode, message string) *Envelope {
	return &Envelope{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message},
		ID:             id,
	}
}
