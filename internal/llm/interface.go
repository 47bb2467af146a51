package llm

import "context"

// LLMClient is the completion surface the refinement panel consumes.
// Both the bare Client and the FallbackClient satisfy it, so a panel
// seat can be a single model or a model with failover behind it.
type LLMClient interface {
	// Complete sends a chat completion request with the given messages
	Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error)

	// CompleteWithRetry attempts completion with retries on transient failures
	CompleteWithRetry(ctx context.Context, messages []ChatMessage, maxRetries int) (*ChatResponse, error)

	// CompleteWithSystem is a convenience method for system + user prompts
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ParseJSONResponse extracts and parses JSON from LLM response content
	ParseJSONResponse(content string, target interface{}) error
}

var _ LLMClient = (*Client)(nil)
var _ LLMClient = (*FallbackClient)(nil)
