package llm

import "time"

// Refinement is the structured verdict a model returns when asked to
// review a draft recommendation. refined_confidence is on the engine's
// 0..1 scale; consumers clip it before use.
type Refinement struct {
	RefinedConfidence float64  `json:"refined_confidence"`
	Reasoning         string   `json:"reasoning"`
	ActionPlan        string   `json:"action_plan,omitempty"`
	RiskAssessment    string   `json:"risk_assessment,omitempty"`
	MarketContext     string   `json:"market_context,omitempty"`
	Risks             []string `json:"risks,omitempty"`
}

// Reading pairs a Refinement with the model that produced it.
type Reading struct {
	Model      string     `json:"model"`
	Refinement Refinement `json:"refinement"`
	Latency    time.Duration
	Tokens     int
}

// PastAnalysis is a prior stored analysis surfaced into the refinement
// prompt so the model can weigh how similar setups resolved.
type PastAnalysis struct {
	Content    string    `json:"content"`
	Direction  string    `json:"direction"`
	Confidence float64   `json:"confidence"`
	Regime     string    `json:"regime"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatRequest represents a request to the LLM API
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

// ChatMessage represents a single message in the chat
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatResponse represents the response from the LLM API
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse represents an error from the LLM API
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// EmbeddingRequest represents a request to the embeddings API
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse represents the response from the embeddings API
type EmbeddingResponse struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
