// Package vllm provides an HTTP client for a vLLM engine with a
// prefill-capable serving layer.
package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kagsys/kag-server/pkg/engine"
)

const (
	prefillPath  = "/v1/prefill"
	generatePath = "/v1/chat/completions"

	// maxErrorBody bounds how much of an error response body is read
	// for diagnostics.
	maxErrorBody = 4096
)

// Config configures the vLLM client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client implements engine.Builder and engine.Generator against a vLLM
// server exposing a prefill endpoint.
type Client struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// New creates a vLLM client.
func New(cfg Config) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpc:   &http.Client{Timeout: cfg.Timeout},
	}
}

// prefillRequest is the body sent to the prefill endpoint.
type prefillRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	KVCacheMode string  `json:"kv_cache_mode"`
}

// prefillResponse is the body returned by the prefill endpoint.
type prefillResponse struct {
	ContextID string `json:"context_id"`
}

// Build primes the engine with the given text and returns the resulting
// context handle. The prefill pass generates a single token with greedy
// decoding; only the materialized context matters.
func (c *Client) Build(ctx context.Context, text string, params engine.BuildParams) (engine.Handle, error) {
	temperature := 0.7
	if params.Deterministic {
		temperature = 0
	}
	maxTokens := params.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = 1
	}

	body := prefillRequest{
		Model:       c.model,
		Prompt:      fmt.Sprintf("<system>\nThe following are important documents to reference: %s\n</system>", text),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		KVCacheMode: "prefill_only",
	}

	var resp prefillResponse
	if err := c.post(ctx, prefillPath, body, &resp); err != nil {
		return "", &engine.BuilderError{Op: "prefill", Err: err}
	}
	if resp.ContextID == "" {
		return "", &engine.BuilderError{Op: "prefill", Err: fmt.Errorf("engine returned empty context id")}
	}

	slog.Debug("vllm: context primed", "context_id", resp.ContextID)
	return engine.Handle(resp.ContextID), nil
}

// generateResponse mirrors the OpenAI chat completion response shape.
type generateResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate produces a chat completion, attaching the primed context handle
// when present.
func (c *Client) Generate(ctx context.Context, req engine.GenerateRequest) (*engine.Completion, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	var resp generateResponse
	if err := c.post(ctx, generatePath, req, &resp); err != nil {
		return nil, &engine.BuilderError{Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &engine.BuilderError{Op: "generate", Err: fmt.Errorf("engine returned no choices")}
	}

	return &engine.Completion{
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Healthy reports whether the engine answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// post sends a JSON request and decodes a JSON response.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling engine: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Verify interface compliance.
var (
	_ engine.Builder   = (*Client)(nil)
	_ engine.Generator = (*Client)(nil)
)
