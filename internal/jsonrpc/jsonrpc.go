package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const Version = "2.0"

// Request is a call or, when ID is empty, a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the sender expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type ErrorCode int

const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string, data any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewResult builds a success response for id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// NewErrorResponse builds an error response for id. A nil id is sent as null.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Error: err}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// ParseRequest decodes a single request or notification. The returned *Error
// is ready to send back to the client.
func ParseRequest(data []byte) (*Request, *Error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewError(InvalidRequest, "Empty message", nil)
	}
	if data[0] == '[' {
		return nil, NewError(InvalidRequest, "Batch requests are not supported", nil)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewError(ParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != Version {
		return nil, NewError(InvalidRequest, "Invalid JSON-RPC version", nil)
	}
	if req.Method == "" {
		return nil, NewError(InvalidRequest, "Missing method", nil)
	}
	if string(req.ID) == "null" {
		req.ID = nil
	}
	return &req, nil
}
