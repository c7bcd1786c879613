package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Classification Tests
// ==========================

func TestClassify_StandardErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{name: "authentication error", err: NewAuthenticationError("chase", "bad key"), expected: CategoryAuthentication},
		{name: "validation error", err: NewValidationError("missing field"), expected: CategoryValidation},
		{name: "transform error", err: NewTransformFailedError("chase", fmt.Errorf("bad doc")), expected: CategoryValidation},
		{name: "circuit open error", err: NewCircuitOpenError("chase"), expected: CategoryCircuitOpen},
		{name: "timeout error", err: NewNetworkTimeoutError("chase", fmt.Errorf("deadline")), expected: CategoryTransient},
		{name: "servicer unavailable", err: NewServicerUnavailableError("chase", "503"), expected: CategoryTransient},
		{name: "nil error", err: nil, expected: CategoryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassify_RawMessageText(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected Category
	}{
		{name: "authentication keyword", message: "request failed: Authentication required", expected: CategoryAuthentication},
		{name: "unauthorized keyword", message: "401 Unauthorized", expected: CategoryAuthentication},
		{name: "credential keyword", message: "expired credentials for portal", expected: CategoryAuthentication},
		{name: "invalid keyword", message: "invalid loan number format", expected: CategoryValidation},
		{name: "malformed keyword", message: "malformed payload", expected: CategoryValidation},
		{name: "circuit keyword", message: "circuit breaker open for chase", expected: CategoryCircuitOpen},
		{name: "plain network error", message: "connection refused", expected: CategoryTransient},
		{name: "timeout text", message: "i/o timeout", expected: CategoryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(fmt.Errorf("%s", tt.message)))
		})
	}
}

func TestIsRetryableCategory(t *testing.T) {
	assert.True(t, IsRetryableCategory(CategoryTransient))
	assert.True(t, IsRetryableCategory(CategoryCircuitOpen))
	assert.False(t, IsRetryableCategory(CategoryAuthentication))
	assert.False(t, IsRetryableCategory(CategoryValidation))
}

func TestStandardError_ErrorString(t *testing.T) {
	err := NewAuthenticationError("chase", "bad key")
	assert.Contains(t, err.Error(), "AUTHENTICATION_FAILED")
	assert.Contains(t, err.Error(), "chase")
	assert.False(t, err.Retryable)
	assert.False(t, err.Timestamp.IsZero())
}
