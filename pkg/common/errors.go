package common

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceUnavailableError is returned when no healthy connection to the
// database can be produced. It is retryable.
type ServiceUnavailableError struct {
	Code    string
	Message string
}

func (su ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", su.Code, su.Message)
}

// NewServiceUnavailableError creates a new instance of ServiceUnavailableError with the given message.
func NewServiceUnavailableError(message string) ServiceUnavailableError {
	return ServiceUnavailableError{
		Code:    "Boreal.ServiceUnavailable",
		Message: message,
	}
}

// SessionExpiredError is returned when the server side session lease is gone. It is retryable.
type SessionExpiredError struct {
	Code    string
	Message string
}

func (se SessionExpiredError) Error() string {
	return fmt.Sprintf("%s: %s", se.Code, se.Message)
}

// NewSessionExpiredError creates a new instance of SessionExpiredError with the given message.
func NewSessionExpiredError(message string) SessionExpiredError {
	return SessionExpiredError{
		Code:    "Boreal.SessionExpired",
		Message: message,
	}
}

// TransientError is returned for retryable server side contention such as deadlocks.
type TransientError struct {
	Code    string
	Message string
}

func (te TransientError) Error() string {
	return fmt.Sprintf("%s: %s", te.Code, te.Message)
}

// NewTransientError creates a new instance of TransientError with the given message.
func NewTransientError(message string) TransientError {
	return TransientError{
		Code:    "Boreal.TransientError",
		Message: message,
	}
}

// ClientError is returned for caller mistakes the server rejects:
// statement syntax, constraint violations, authorization failures. Fatal, never retried.
type ClientError struct {
	Code    string
	Message string
}

func (ce ClientError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Code, ce.Message)
}

// NewClientError creates a new instance of ClientError with the given message.
func NewClientError(message string) ClientError {
	return ClientError{
		Code:    "Boreal.ClientError",
		Message: message,
	}
}

// ProtocolError indicates a framing or protocol state violation. It points to a
// driver or server bug and is fatal.
type ProtocolError struct {
	Code    string
	Message string
}

func (pe ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", pe.Code, pe.Message)
}

// NewProtocolError creates a new instance of ProtocolError with the given message.
func NewProtocolError(message string) ProtocolError {
	return ProtocolError{
		Code:    "Boreal.ProtocolError",
		Message: message,
	}
}

// UsageError is returned synchronously on direct API misuse such as beginning a
// second transaction on a session or running a query after close. No network I/O
// is ever attempted for these.
type UsageError struct {
	Code    string
	Message string
}

func (ue UsageError) Error() string {
	return fmt.Sprintf("%s: %s", ue.Code, ue.Message)
}

// NewUsageError creates a new instance of UsageError with the given message.
func NewUsageError(message string) UsageError {
	return UsageError{
		Code:    "Boreal.UsageError",
		Message: message,
	}
}

// RetryExhaustedError is returned by the retry executor once the cumulative
// retry time exceeds the configured ceiling. Suppressed holds the errors of the
// earlier failed attempts; Unwrap exposes the last one so callers can still
// classify the underlying failure.
type RetryExhaustedError struct {
	Message    string
	LastErr    error
	Suppressed []error
}

func (re RetryExhaustedError) Error() string {
	var sb strings.Builder
	sb.WriteString(re.Message)
	if re.LastErr != nil {
		sb.WriteString(": ")
		sb.WriteString(re.LastErr.Error())
	}
	if len(re.Suppressed) > 0 {
		sb.WriteString(fmt.Sprintf(" (and %d earlier attempt(s) suppressed)", len(re.Suppressed)))
	}
	return sb.String()
}

func (re RetryExhaustedError) Unwrap() error {
	return re.LastErr
}

// NewRetryExhaustedError creates a new instance of RetryExhaustedError.
func NewRetryExhaustedError(message string, lastErr error, suppressed []error) RetryExhaustedError {
	return RetryExhaustedError{
		Message:    message,
		LastErr:    lastErr,
		Suppressed: suppressed,
	}
}

// IsRetryable reports whether the given error belongs to one of the error
// classes eligible for automatic retry. Classification is by type, never by
// message text.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var su ServiceUnavailableError
	if errors.As(err, &su) {
		return true
	}
	var se SessionExpiredError
	if errors.As(err, &se) {
		return true
	}
	var te TransientError
	return errors.As(err, &te)
}
