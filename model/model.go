package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/simcoestone/modelmesh/core"
)

// Request captures the normalized model input produced by the orchestrator.
type Request struct {
	Instructions string         `json:"instructions"` // System prompt; empty omits it
	Contents     []core.Content `json:"contents"`     // Conversation converted to provider messages
	MaxTokens    int64          `json:"max_tokens,omitempty"`
	Temperature  float64        `json:"temperature,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Backend hands out a Model bound to a concrete model name. The selector
// decides the name, the backend knows how to reach it.
type Backend interface {
	Model(name string) Model
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(name string) Model

// Model implements Backend.
func (f BackendFunc) Model(name string) Model { return f(name) }

// Collect drains both channels of a Generate call and returns the final
// (non-partial) response. Partial chunks are concatenated when a provider
// never sends a final one.
func Collect(ctx context.Context, out <-chan Response, errCh <-chan error) (Response, error) {
	var (
		final   Response
		gotLast bool
		partial string
	)

	for out != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			if r.Partial {
				partial += r.Content.Text()
				continue
			}
			final, gotLast = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !gotLast {
		if partial == "" {
			return Response{}, fmt.Errorf("model returned no response")
		}
		final = Response{Content: core.NewTextContent("assistant", partial), FinishReason: "stop"}
	}
	return final, nil
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith makes every later Generate call fail with err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	var inputText string
	if n := len(req.Contents); n > 0 {
		inputText = req.Contents[n-1].Text()
	}
	full := m.responses[inputText]
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failure != nil {
			errCh <- failure
			return
		}
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent("assistant", string(r))}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Content:      core.NewTextContent("assistant", full),
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// MockBackend hands out one MockModel per model name.
type MockBackend struct {
	mu     sync.Mutex
	models map[string]*MockModel
	calls  []string
}

// NewMockBackend returns an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{models: make(map[string]*MockModel)}
}

// Model implements Backend.
func (b *MockBackend) Model(name string) Model {
	b.mu.Lock()
	b.calls = append(b.calls, name)
	b.mu.Unlock()
	return b.Mock(name)
}

// Mock returns the MockModel for name, creating it on first use.
func (b *MockBackend) Mock(name string) *MockModel {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.models[name]
	if !ok {
		m = NewMockModel(name, "mock")
		b.models[name] = m
	}
	return m
}

// Calls lists the model names requested in order.
func (b *MockBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}
