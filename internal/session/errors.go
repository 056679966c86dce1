package session

import "fmt"

// SessionError represents a session-related error
type SessionError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Error codes for session operations
const (
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrSessionExpired  = "SESSION_EXPIRED"
	ErrSessionInvalid  = "SESSION_INVALID"
	ErrSessionStorage  = "SESSION_STORAGE_ERROR"
)

// NewSessionNotFoundError creates a session not found error
func NewSessionNotFoundError(sessionID string) *SessionError {
	return &SessionError{
		Code:    ErrSessionNotFound,
		Message: fmt.Sprintf("session not found: %s", sessionID),
	}
}

// NewSessionExpiredError creates a session expired error
func NewSessionExpiredError(sessionID string) *SessionError {
	return &SessionError{
		Code:    ErrSessionExpired,
		Message: fmt.Sprintf("session expired: %s", sessionID),
	}
}

// NewSessionInvalidError reports an ID that is not a session ID at all.
func NewSessionInvalidError(sessionID string, cause error) *SessionError {
	return &SessionError{
		Code:    ErrSessionInvalid,
		Message: fmt.Sprintf("malformed session ID: %q", sessionID),
		Cause:   cause,
	}
}

// NewSessionStorageError creates a session storage error
func NewSessionStorageError(operation string, cause error) *SessionError {
	return &SessionError{
		Code:    ErrSessionStorage,
		Message: fmt.Sprintf("session storage error during %s", operation),
		Cause:   cause,
	}
}

// Code returns the SessionError code of err, or an empty string.
func Code(err error) string {
	if se, ok := err.(*SessionError); ok {
		return se.Code
	}
	return ""
}
