package api

import (
	"time"

	"github.com/kagsys/kag-server/pkg/engine"
)

// chatRequest is an OpenAI-style chat completion request with the
// document-grounding extensions.
type chatRequest struct {
	Model       string           `json:"model,omitempty"`
	Messages    []engine.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`

	// SessionID scopes the conversation; a new one is assigned when empty.
	SessionID string `json:"session_id,omitempty"`

	// KAGEnabled asks for generation against primed document context.
	KAGEnabled bool `json:"kag_enabled,omitempty"`

	// DocumentIDs is the document set to ground on. When set it becomes
	// the session's authoritative binding.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// chatChoice is one completion choice.
type chatChoice struct {
	Index        int            `json:"index"`
	Message      engine.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// chatUsage is the token accounting block.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse mirrors the OpenAI chat completion response shape, plus the
// session the turn was recorded under.
type chatResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Created   int64        `json:"created"`
	Model     string       `json:"model"`
	Choices   []chatChoice `json:"choices"`
	Usage     chatUsage    `json:"usage"`
	SessionID string       `json:"session_id"`
}

// uploadRequest describes a document upload.
type uploadRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Format  string `json:"format,omitempty"`
	Payload string `json:"payload"`
}

// documentResponse is one stored document.
type documentResponse struct {
	ID           string    `json:"document_id"`
	Name         string    `json:"name"`
	Format       string    `json:"format,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	SegmentCount int       `json:"segment_count"`
}

// listDocumentsResponse is the document listing body.
type listDocumentsResponse struct {
	Documents []documentResponse `json:"documents"`
}

// deletedResponse reports a deletion outcome.
type deletedResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
