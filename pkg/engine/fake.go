package engine

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Builder and Generator for tests and offline runs.
// It records every build and can be scripted to fail.
type Fake struct {
	mu     sync.Mutex
	builds int
	texts  []string

	// BuildErr, when set, is returned by Build instead of a handle.
	BuildErr error

	// GenerateContent is the canned completion content.
	GenerateContent string
}

// NewFake creates a fake engine.
func NewFake() *Fake {
	return &Fake{GenerateContent: "fake completion"}
}

// Build returns a unique handle per call and records the primed text.
func (f *Fake) Build(_ context.Context, text string, _ BuildParams) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.BuildErr != nil {
		return "", &BuilderError{Op: "build", Err: f.BuildErr}
	}

	f.builds++
	f.texts = append(f.texts, text)
	return Handle(fmt.Sprintf("fake-ctx-%d", f.builds)), nil
}

// Generate returns the canned completion.
func (f *Fake) Generate(_ context.Context, req GenerateRequest) (*Completion, error) {
	return &Completion{
		Content:          f.GenerateContent,
		FinishReason:     "stop",
		PromptTokens:     len(req.Messages),
		CompletionTokens: 1,
	}, nil
}

// BuildCount returns how many builds succeeded.
func (f *Fake) BuildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

// LastText returns the most recently primed text, or empty.
func (f *Fake) LastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// SetBuildErr scripts Build to fail (or succeed again with nil).
func (f *Fake) SetBuildErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BuildErr = err
}

// Verify interface compliance.
var (
	_ Builder   = (*Fake)(nil)
	_ Generator = (*Fake)(nil)
)
