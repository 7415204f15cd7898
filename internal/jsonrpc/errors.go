package jsonrpc

// ErrorCode is a protocol-level error code.
type ErrorCode int

const (
	// ErrorCodeMethodNotAllowed rejects an unsupported HTTP verb on the
	// exchange path, before any body inspection.
	ErrorCodeMethodNotAllowed ErrorCode = -32000
	// ErrorCodeMethodNotFound indicates an unknown protocol method.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates parameters that fail a capability's
	// declared schema, or an unknown capability name.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an uncaught fault during transport
	// setup or dispatch.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeParseError indicates a body that could not be decoded into an
	// envelope at all.
	ErrorCodeParseError ErrorCode = -32700
)
