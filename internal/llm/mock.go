package llm

import (
	"context"
	"sync"
)

// MockAdapter returns canned text or a canned error and records requests.
type MockAdapter struct {
	Text string
	Err  error

	mu       sync.Mutex
	requests []Request
}

func NewMockAdapter(text string, err error) *MockAdapter {
	return &MockAdapter{Text: text, Err: err}
}

func (a *MockAdapter) Generate(ctx context.Context, req Request) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if a.Err != nil {
		return "", a.Err
	}
	return a.Text, nil
}

// Requests returns a copy of every request received so far.
func (a *MockAdapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}
