package llm

import (
	"context"
	"sync"
)

// MockCompleter is a deterministic Completer for tests. When CompleteFunc is set it is called;
// otherwise Responses are returned in order, repeating the last one once exhausted.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	Responses    []string

	mu      sync.Mutex
	prompts []string
}

// Complete records prompt and returns the scripted response.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	n := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	if n >= len(m.Responses) {
		n = len(m.Responses) - 1
	}
	return m.Responses[n], nil
}

// Prompts returns every prompt received so far.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
