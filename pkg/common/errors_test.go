package common

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientError("deadlock detected")))
	assert.True(t, IsRetryable(NewServiceUnavailableError("no healthy servers")))
	assert.True(t, IsRetryable(NewSessionExpiredError("lease gone")))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(NewClientError("syntax error")))
	assert.False(t, IsRetryable(NewProtocolError("unexpected message")))
	assert.False(t, IsRetryable(NewUsageError("transaction already open")))
}

func TestIsRetryableWrapped(t *testing.T) {
	err := fmt.Errorf("attempt failed: %w", NewTransientError("lock contention"))
	assert.True(t, IsRetryable(err))

	err = fmt.Errorf("attempt failed: %w", NewClientError("constraint violation"))
	assert.False(t, IsRetryable(err))
}

func TestRetryExhaustedErrorUnwrap(t *testing.T) {
	last := NewTransientError("deadlock")
	re := NewRetryExhaustedError("retries exhausted after 30s", last, []error{NewTransientError("earlier")})

	assert.True(t, IsRetryable(re))
	assert.Contains(t, re.Error(), "retries exhausted")
	assert.Contains(t, re.Error(), "1 earlier attempt(s) suppressed")
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, "Boreal.TransientError", NewTransientError("x").Code)
	assert.Equal(t, "Boreal.ServiceUnavailable", NewServiceUnavailableError("x").Code)
	assert.Equal(t, "Boreal.SessionExpired", NewSessionExpiredError("x").Code)
	assert.Equal(t, "Boreal.ClientError", NewClientError("x").Code)
	assert.Equal(t, "Boreal.ProtocolError", NewProtocolError("x").Code)
	assert.Equal(t, "Boreal.UsageError", NewUsageError("x").Code)
}
