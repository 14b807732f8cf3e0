package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Remote channel errors
	ErrCodeChannelFailure ErrorCode = "CHANNEL_FAILURE"
	ErrCodeNotReady       ErrorCode = "NOT_READY"

	// Mirror state errors
	ErrCodeEnvNotFound ErrorCode = "ENV_NOT_FOUND"
	ErrCodeUnknownEnv  ErrorCode = "UNKNOWN_ENV"

	// Notification store errors
	ErrCodeUnknownChannel ErrorCode = "UNKNOWN_CHANNEL"
	ErrCodeInvalidValue   ErrorCode = "INVALID_VALUE"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// EnvError represents a structured error with context
type EnvError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *EnvError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *EnvError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *EnvError) WithDetail(key string, value interface{}) *EnvError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *EnvError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new EnvError
func New(code ErrorCode, message string) *EnvError {
	return &EnvError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an EnvError
func Wrap(err error, code ErrorCode, message string) *EnvError {
	return &EnvError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error carries a specific EnvError code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the first error code found in the error chain
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	envErr, ok := err.(*EnvError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return envErr.Code
}
