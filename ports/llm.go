package ports

import "context"

// UsageData represents raw usage data from LLM provider APIs
type UsageData struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// LLMResponse represents an LLM response with usage data
type LLMResponse struct {
	Content string
	Usage   *UsageData
}

// ChatRequest is one chat completion call
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONMode    bool // ask the provider for a JSON object response
}

// LLMClient interface for LLM providers
type LLMClient interface {
	// ChatCompletion sends one request and returns the first choice with usage data
	ChatCompletion(ctx context.Context, req ChatRequest) (*LLMResponse, error)
}
