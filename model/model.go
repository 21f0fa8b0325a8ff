package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/cognimesh/core"
)

// Type selects the model tier.
type Type string

const (
	// TypeTextSmall is the fast, cheap tier used for classification and gating.
	TypeTextSmall Type = "TEXT_SMALL"
	// TypeTextLarge is the capable tier used for decisions and planning.
	TypeTextLarge Type = "TEXT_LARGE"
)

// Params tunes a single generation. Zero values mean backend defaults.
type Params struct {
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"` // honored by backends that support stop sequences
}

// Float returns a pointer to v, for Params.Temperature.
func Float(v float64) *float64 { return &v }

// Info contains metadata about a backend implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Backend is the minimal interface a model vendor adapter implements.
type Backend interface {
	Generate(ctx context.Context, t Type, prompt string, params Params) (string, error)

	// Info returns information about the backend implementation.
	Info() Info
}

// MockCall records one Generate invocation on a MockBackend.
type MockCall struct {
	Type   Type
	Prompt string
	Params Params
}

type mockRule struct {
	contains string
	response string
	err      error
}

// DefaultMockResponse is returned by a MockBackend when nothing else matches.
const DefaultMockResponse = `<response>
<thought>Replying with a canned answer.</thought>
<actions>REPLY</actions>
<text>Hello from the mock backend.</text>
</response>`

// MockBackend is a lightweight in-memory Backend useful for tests & examples.
// Queued responses are served first (FIFO), then the first rule whose
// substring occurs in the prompt, then the fallback.
type MockBackend struct {
	mu       sync.Mutex
	info     Info
	queue    []mockRule
	rules    []mockRule
	fallback string
	calls    []MockCall
}

// NewMockBackend constructs a MockBackend answering with DefaultMockResponse.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		info:     Info{Name: "mock", Provider: "mock"},
		fallback: DefaultMockResponse,
	}
}

// On registers a canned response for prompts containing substr.
func (m *MockBackend) On(substr, response string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = append(m.rules, mockRule{contains: substr, response: response})

	return m
}

// OnError makes prompts containing substr fail with err.
func (m *MockBackend) OnError(substr string, err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = append(m.rules, mockRule{contains: substr, err: err})

	return m
}

// Enqueue adds a one-shot response served before any rule.
func (m *MockBackend) Enqueue(response string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, mockRule{response: response})

	return m
}

// EnqueueError adds a one-shot failure served before any rule.
func (m *MockBackend) EnqueueError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, mockRule{err: err})

	return m
}

// SetFallback replaces the fallback response. An empty fallback makes
// unmatched prompts fail.
func (m *MockBackend) SetFallback(response string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = response

	return m
}

// Calls returns a copy of all recorded invocations.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)

	return out
}

// Generate implements Backend.
func (m *MockBackend) Generate(ctx context.Context, t Type, prompt string, params Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Type: t, Prompt: prompt, Params: params})

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]

		return next.response, next.err
	}

	for _, r := range m.rules {
		if strings.Contains(prompt, r.contains) {
			return r.response, r.err
		}
	}

	if m.fallback == "" {
		return "", errors.New("mock backend: no response configured")
	}

	return m.fallback, nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info { return m.info }

// compile-time check
var _ Backend = (*MockBackend)(nil)

// wrapModelError tags backend failures with the model error code.
func wrapModelError(source string, err error) error {
	if err == nil {
		return nil
	}

	return core.Wrap(core.CodeModel, source, err)
}
