package llm

import (
	"context"
	"sync"

	"gortm/ports"
)

// MockLLMClient is a mock LLM client for testing
type MockLLMClient struct {
	Response string
	Error    error
	// Respond, when set, computes the response per call and overrides Response/Error
	Respond func(ctx context.Context, req ports.ChatRequest) (*ports.LLMResponse, error)

	mu       sync.Mutex
	Requests []ports.ChatRequest
}

// ChatCompletion records the request and returns the configured response
func (m *MockLLMClient) ChatCompletion(ctx context.Context, req ports.ChatRequest) (*ports.LLMResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(ctx, req)
	}
	if m.Error != nil {
		return nil, m.Error
	}
	return &ports.LLMResponse{
		Content: m.Response,
		Usage:   &ports.UsageData{Model: req.Model, Provider: "mock"},
	}, nil
}

// Calls returns the number of requests received
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
