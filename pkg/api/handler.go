// Package api provides the REST surface of kag-server: OpenAI-compatible
// chat completions with document grounding, document management, session
// management, and stats.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kagsys/kag-server/pkg/auth"
	"github.com/kagsys/kag-server/pkg/document"
	"github.com/kagsys/kag-server/pkg/engine"
	"github.com/kagsys/kag-server/pkg/health"
	"github.com/kagsys/kag-server/pkg/kvcache"
	"github.com/kagsys/kag-server/pkg/session"
)

// Handler serves the REST API.
type Handler struct {
	mux *http.ServeMux

	registry  *session.Registry
	cache     *kvcache.Cache
	generator engine.Generator
	ingestor  *document.Ingestor
	store     document.Store
	model     string
}

// NewHandler creates the API handler. Health endpoints stay outside the
// auth middleware; everything else goes through it.
func NewHandler(
	registry *session.Registry,
	cache *kvcache.Cache,
	generator engine.Generator,
	ingestor *document.Ingestor,
	store document.Store,
	checker *health.Checker,
	model string,
	authMiddle func(http.Handler) http.Handler,
) *Handler {
	h := &Handler{
		mux:       http.NewServeMux(),
		registry:  registry,
		cache:     cache,
		generator: generator,
		ingestor:  ingestor,
		store:     store,
		model:     model,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat/completions", h.chatCompletions)
	api.HandleFunc("POST /v1/documents/upload", h.uploadDocument)
	api.HandleFunc("GET /v1/documents", h.listDocuments)
	api.HandleFunc("DELETE /v1/documents/{id}", h.deleteDocument)
	api.HandleFunc("GET /v1/sessions", h.listSessions)
	api.HandleFunc("DELETE /v1/sessions/{id}", h.deleteSession)
	api.HandleFunc("GET /stats/kvcache", h.kvcacheStats)
	api.HandleFunc("GET /stats/sessions", h.sessionStats)

	var protected http.Handler = api
	if authMiddle != nil {
		protected = authMiddle(api)
	}

	h.mux.HandleFunc("GET /healthz", checker.LivenessHandler())
	h.mux.HandleFunc("GET /readyz", checker.ReadinessHandler())
	h.mux.Handle("/", protected)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// chatCompletions handles POST /v1/chat/completions. With kag_enabled set
// the session's document context is made ready before generating, and the
// resulting context handle is attached to the engine request.
func (h *Handler) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	userID := auth.UserID(r.Context())
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	summary := h.registry.GetOrCreate(sessionID, userID)

	var handle engine.Handle
	if req.KAGEnabled {
		// The request's document list wins; an omitted list falls back to
		// the session's current binding.
		documentIDs := req.DocumentIDs
		if len(documentIDs) == 0 {
			documentIDs = summary.DocumentIDs
		}

		if len(documentIDs) > 0 {
			if err := h.cache.EnsureReady(r.Context(), sessionID, documentIDs, userID); err != nil {
				writeContextError(w, sessionID, err)
				return
			}
			handle, _ = h.cache.Get(sessionID)
		}
	}

	completion, err := h.generator.Generate(r.Context(), engine.GenerateRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		ContextHandle: handle,
	})
	if err != nil {
		slog.Error("api: generation failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "engine generation failed")
		return
	}

	h.registry.RecordTurn(sessionID, req.Messages, engine.Message{
		Role:    "assistant",
		Content: completion.Content,
	})

	model := req.Model
	if model == "" {
		model = h.model
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Message:      engine.Message{Role: "assistant", Content: completion.Content},
			FinishReason: completion.FinishReason,
		}},
		Usage: chatUsage{
			PromptTokens:     completion.PromptTokens,
			CompletionTokens: completion.CompletionTokens,
			TotalTokens:      completion.PromptTokens + completion.CompletionTokens,
		},
		SessionID: sessionID,
	})
}

// writeContextError maps context preparation failures to status codes.
func writeContextError(w http.ResponseWriter, sessionID string, err error) {
	var buildErr *kvcache.BuildError
	switch {
	case errors.Is(err, kvcache.ErrNoContent):
		writeError(w, http.StatusUnprocessableEntity, "requested documents have no usable content")
	case errors.As(err, &buildErr):
		slog.Error("api: context build failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "context build failed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "context build timed out")
	default:
		slog.Error("api: context preparation failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "context preparation failed")
	}
}

// uploadDocument handles POST /v1/documents/upload.
func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Payload == "" {
		writeError(w, http.StatusBadRequest, "payload must not be empty")
		return
	}

	doc, err := h.ingestor.Ingest(r.Context(), document.IngestRequest{
		ID:      req.ID,
		Name:    req.Name,
		Format:  req.Format,
		Payload: req.Payload,
		UserID:  auth.UserID(r.Context()),
	})
	if err != nil {
		slog.Error("api: document ingest failed", "name", req.Name, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "document could not be ingested")
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// listDocuments handles GET /v1/documents.
func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListForUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		slog.Error("api: listing documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	resp := listDocumentsResponse{Documents: make([]documentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteDocument handles DELETE /v1/documents/{id}. A document owned by
// someone else looks identical to a missing one.
func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.store.Delete(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		slog.Error("api: deleting document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

// listSessions handles GET /v1/sessions.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries := h.registry.ListForUser(auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string][]session.Summary{"sessions": summaries})
}

// deleteSession handles DELETE /v1/sessions/{id}. Deletion cascades to the
// session's cached context. Another user's session looks missing.
func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, ok := h.registry.Get(id)
	if !ok || summary.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.registry.Delete(id)
	h.cache.Clear(id)
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Deleted: true})
}

// kvcacheStats handles GET /stats/kvcache.
func (h *Handler) kvcacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// sessionStats handles GET /stats/sessions.
func (h *Handler) sessionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Stats())
}

func toDocumentResponse(doc *document.Document) documentResponse {
	return documentResponse{
		ID:           doc.ID,
		Name:         doc.Name,
		Format:       doc.Format,
		CreatedAt:    doc.CreatedAt,
		SegmentCount: doc.SegmentCount,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
