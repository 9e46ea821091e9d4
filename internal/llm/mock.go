package llm

import (
	"context"
	"sync"
)

// MockProvider returns canned responses for tests
type MockProvider struct {
	ProviderName string
	Responses    []string // Returned in order; the last one repeats
	Err          error

	mu       sync.Mutex
	requests []CompletionRequest
}

// Name returns the configured name or "mock"
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// IsAvailable always reports true
func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return true
}

// Complete records the request and returns the next canned response
func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	text := ""
	if n := len(m.Responses); n > 0 {
		i := len(m.requests) - 1
		if i >= n {
			i = n - 1
		}
		text = m.Responses[i]
	}
	return &CompletionResponse{Text: text, Model: "mock"}, nil
}

// Calls returns the number of Complete calls
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
