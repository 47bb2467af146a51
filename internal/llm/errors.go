package llm

import (
	"fmt"
	"net/http"
)

// LLMError is an API-level failure with enough context to decide
// whether retrying the same model is worthwhile.
type LLMError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *LLMError) Error() string {
	return fmt.Sprintf("LLM API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
// Rate limits and server-side errors are worth retrying; the 4xx
// family means the request itself is wrong and will keep failing.
func (e *LLMError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// classifyHTTPError wraps a non-200 gateway response as an LLMError
func classifyHTTPError(statusCode int, message string) error {
	return &LLMError{
		StatusCode: statusCode,
		Message:    message,
	}
}
