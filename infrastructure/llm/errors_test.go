package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifierClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		name       string
		statusCode int
		wantType   ErrorType
		retryable  bool
	}{
		{"unauthorized", 401, ErrorTypeAuthentication, false},
		{"forbidden", 403, ErrorTypeAuthentication, false},
		{"rate limited", 429, ErrorTypeRateLimit, true},
		{"bad request", 400, ErrorTypeBadRequest, false},
		{"not found", 404, ErrorTypeNotFound, false},
		{"server error", 500, ErrorTypeServerError, true},
		{"bad gateway", 502, ErrorTypeServerError, true},
		{"service unavailable", 503, ErrorTypeServerError, true},
		{"gateway timeout", 504, ErrorTypeServerError, true},
		{"unmapped 4xx", 422, ErrorTypeBadRequest, false},
		{"unmapped 5xx", 599, ErrorTypeServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provErr := ec.ClassifyHTTPError(tt.statusCode, "detail", nil)
			assert.Equal(t, tt.wantType, provErr.Type)
			assert.Equal(t, tt.retryable, provErr.IsRetryable())
			assert.Equal(t, tt.statusCode, provErr.StatusCode)
			assert.Equal(t, "openai", provErr.Provider)
		})
	}
}

func TestErrorClassifierClassifyContextError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "anthropic"}

	deadline := ec.ClassifyContextError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, deadline.Type)
	assert.True(t, deadline.IsRetryable())

	canceled := ec.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeNetwork, canceled.Type)

	unknown := ec.ClassifyContextError(errors.New("something else"))
	assert.Equal(t, ErrorTypeUnknown, unknown.Type)
	assert.False(t, unknown.IsRetryable())
}

func TestContentPolicyError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "google"}

	provErr := ec.ContentPolicyError("safety block", nil)
	assert.True(t, provErr.IsContentPolicy())
	assert.False(t, provErr.IsRetryable())
	assert.Contains(t, provErr.Error(), "safety block")

	defaulted := ec.ContentPolicyError("", nil)
	assert.Contains(t, defaulted.Error(), "content policy")
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	provErr := NewProviderError("openai", ErrorTypeServerError, 500, "boom", inner)

	require.ErrorIs(t, provErr, inner)
	assert.Contains(t, provErr.Error(), "HTTP 500")
	assert.Contains(t, provErr.Error(), "server_error")
	assert.Contains(t, provErr.Error(), "root cause")
}
