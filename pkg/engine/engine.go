// Package engine defines the inference engine boundary for kag-server.
// The server never inspects engine context internals; it holds opaque
// handles returned by a Builder and passes them back on generation.
package engine

import (
	"context"
	"fmt"
)

// Handle is an opaque reference to engine context primed with document text.
// Handles are compared for equality only, never introspected.
type Handle string

// BuildParams controls a context build.
type BuildParams struct {
	// Deterministic requests greedy decoding during the prefill pass.
	Deterministic bool

	// MaxNewTokens bounds generation during the build. Priming only needs
	// a single token to materialize the context.
	MaxNewTokens int
}

// Builder primes the engine with reference text and returns a reusable
// context handle. Build is expensive and has no side effects on the caller.
type Builder interface {
	Build(ctx context.Context, text string, params BuildParams) (Handle, error)
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// GenerateRequest is a chat completion request against the engine.
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`

	// ContextHandle references previously primed context. Empty means no
	// primed context is attached.
	ContextHandle Handle `json:"context_id,omitempty"`
}

// Completion is the engine's response to a GenerateRequest.
type Completion struct {
	Content          string `json:"content"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Generator produces chat completions, optionally against primed context.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Completion, error)
}

// BuilderError reports an engine failure during a build or generation call.
type BuilderError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *BuilderError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuilderError) Unwrap() error {
	return e.Err
}
