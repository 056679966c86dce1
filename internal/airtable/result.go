package airtable

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a failed tool call independently of remote status codes.
type Kind string

// Failure kinds
const (
	KindUnknownTool        Kind = "UnknownTool"
	KindInvalidParameters  Kind = "InvalidParameters"
	KindBatchTooLarge      Kind = "BatchTooLarge"
	KindUnauthorized       Kind = "Unauthorized"
	KindNotFound           Kind = "NotFound"
	KindRateLimitExhausted Kind = "RateLimitExhausted"
	KindRemoteRejected     Kind = "RemoteRejected"
	KindTransientFailure   Kind = "TransientFailure"
	KindTimeout            Kind = "Timeout"
)

// Failure describes why a tool call did not succeed.
type Failure struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	RemoteCode string `json:"remote_code,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Error implements the error interface
func (f *Failure) Error() string {
	if f.RemoteCode != "" {
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.RemoteCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure creates a failure of the given kind.
func NewFailure(kind Kind, message string, retryable bool) *Failure {
	return &Failure{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
	}
}

// NewUnknownToolFailure reports a tool name missing from the catalog.
func NewUnknownToolFailure(name string) *Failure {
	return NewFailure(KindUnknownTool, fmt.Sprintf("unknown tool: %s", name), false)
}

// NewInvalidParametersFailure reports a parameter that is absent or malformed.
func NewInvalidParametersFailure(format string, args ...any) *Failure {
	return NewFailure(KindInvalidParameters, fmt.Sprintf(format, args...), false)
}

// NewBatchTooLargeFailure reports a bulk mutation above the per-request ceiling.
func NewBatchTooLargeFailure(param string, size, max int) *Failure {
	return NewFailure(KindBatchTooLarge,
		fmt.Sprintf("%s has %d items, at most %d are allowed per request", param, size, max), false)
}

// NewTimeoutFailure reports a deadline that elapsed while waiting or retrying.
func NewTimeoutFailure(cause error) *Failure {
	msg := "deadline exceeded while waiting for the remote service"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return NewFailure(KindTimeout, msg, true)
}

// Result is exactly one of a successful payload or a Failure.
type Result struct {
	payload json.RawMessage
	failure *Failure
}

// Success wraps a decoded remote payload. A nil payload is normalized to an empty object.
func Success(payload json.RawMessage) Result {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Result{payload: payload}
}

// Failed wraps a failure. A nil failure is treated as a transient failure so the
// result is never empty.
func Failed(f *Failure) Result {
	if f == nil {
		f = NewFailure(KindTransientFailure, "unspecified failure", true)
	}
	return Result{failure: f}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.failure == nil
}

// Payload returns the success payload, or nil for a failure.
func (r Result) Payload() json.RawMessage {
	if r.failure != nil {
		return nil
	}
	if r.payload == nil {
		return json.RawMessage(`{}`)
	}
	return r.payload
}

// Failure returns the failure, or nil for a success.
func (r Result) Failure() *Failure {
	return r.failure
}

// Err returns the failure as an error, or nil for a success.
func (r Result) Err() error {
	if r.failure == nil {
		return nil
	}
	return r.failure
}
