// Package testutils provides deterministic collaborators for testing
// the evaluation engine: a scriptable model backend and store fixtures.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// MockResponse defines one pre-configured response pattern for the mock
// backend. Patterns match by substring against the prompt; the empty
// pattern is the fallback.
type MockResponse struct {
	// Pattern is matched against prompts (substring matching).
	Pattern string

	// Response is the text returned for matching prompts.
	Response string

	// InputTokens and OutputTokens are the usage figures reported with
	// the completion. Zero values simulate a provider omitting usage,
	// forcing the caller onto its estimator fallback.
	InputTokens  int
	OutputTokens int

	// Err, when set, fails the call instead of returning Response.
	Err error
}

// RecordedCall captures one Complete invocation for assertions.
type RecordedCall struct {
	ModelID   string
	Prompt    string
	Options   ports.CompletionOptions
	Timestamp time.Time
}

// MockBackend implements ports.ModelBackend with deterministic,
// scriptable behavior. Responses are selected by longest matching
// pattern; failures can be injected per model or per prompt pattern.
// Safe for concurrent use, matching the executor's batch dispatch.
type MockBackend struct {
	mu sync.Mutex

	responses  []MockResponse
	failModels map[string]error
	delay      time.Duration
	calls      []RecordedCall
}

// NewMockBackend creates a mock backend with a single generic fallback
// response reporting usage figures.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		responses: []MockResponse{{
			Response:     "This is a standard response for testing purposes.",
			InputTokens:  12,
			OutputTokens: 9,
		}},
		failModels: make(map[string]error),
	}
}

// AddResponse registers a response pattern. Later additions win over
// earlier ones at equal specificity.
func (m *MockBackend) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// FailModel makes every call for the given model id fail with err.
func (m *MockBackend) FailModel(modelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failModels[modelID] = err
}

// SetDelay makes every call sleep before responding, to exercise
// timeout handling.
func (m *MockBackend) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns a copy of every recorded invocation in arrival order.
func (m *MockBackend) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedCall(nil), m.calls...)
}

// CallCount returns how many Complete invocations have been recorded.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Complete implements ports.ModelBackend.
func (m *MockBackend) Complete(ctx context.Context, model domain.Model, prompt string, opts ports.CompletionOptions) (ports.Completion, error) {
	if prompt == "" {
		return ports.Completion{}, fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	m.calls = append(m.calls, RecordedCall{
		ModelID:   model.ID,
		Prompt:    prompt,
		Options:   opts,
		Timestamp: time.Now(),
	})
	failErr := m.failModels[model.ID]
	delay := m.delay
	selected := m.findMatchingResponse(prompt)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ports.Completion{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return ports.Completion{}, err
	}
	if failErr != nil {
		return ports.Completion{}, failErr
	}
	if selected.Err != nil {
		return ports.Completion{}, selected.Err
	}

	return ports.Completion{
		Text:         selected.Response,
		InputTokens:  selected.InputTokens,
		OutputTokens: selected.OutputTokens,
		Duration:     time.Millisecond,
	}, nil
}

// findMatchingResponse selects the registered response whose pattern is
// the longest substring of the prompt. The empty pattern matches
// everything and so acts as the fallback.
func (m *MockBackend) findMatchingResponse(prompt string) MockResponse {
	var best MockResponse
	bestLen := -1
	for _, candidate := range m.responses {
		if !strings.Contains(prompt, candidate.Pattern) {
			continue
		}
		if len(candidate.Pattern) > bestLen {
			best = candidate
			bestLen = len(candidate.Pattern)
		}
	}
	return best
}
