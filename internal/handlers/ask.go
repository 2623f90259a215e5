package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"issuesync/internal/contextutil"
	"issuesync/internal/rag"
	"issuesync/internal/service"
)

// AskHandler handles HTTP requests for questions over a repository's issues.
type AskHandler struct {
	syncService service.SyncService
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(syncService service.SyncService) *AskHandler {
	return &AskHandler{syncService: syncService}
}

// AskRequest represents the HTTP request payload for questions.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question"`
	// State limits retrieval to "open" or "closed" issues.
	State string `json:"state,omitempty"`
	// Kind limits retrieval to "issue" bodies or "comment"s.
	Kind   string `json:"kind,omitempty"`
	K      int    `json:"k,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ServeHTTP answers a question from the repository's indexed issues.
//
// swagger:route POST /api/repos/{owner}/{name}/ask askQuestion
//
// # Ask a question about a repository's issues
//
// Use the `debug=true` query parameter to include the retrieved chunks with their scores.
// Use `stream=true` to receive the answer as Server-Sent Events, followed by a
// `references` event and a final `[DONE]`.
//
// responses:
//
//	'200': AskResponse
//	'400': ErrorResponse
//	'404': ErrorResponse
//	'502': ErrorResponse
//	'500': ErrorResponse
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	ragReq := rag.AskRequest{
		Question: req.Question,
		State:    strings.ToLower(req.State),
		Kind:     strings.ToLower(req.Kind),
		K:        req.K,
		Detail:   strings.ToLower(strings.TrimSpace(req.Detail)),
		Debug:    boolParam(r, "debug"),
	}

	if boolParam(r, "stream") {
		h.stream(w, r, ragReq)
		return
	}

	resp, err := h.syncService.Ask(ctx, repoParam(r), ragReq)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// stream writes the answer as Server-Sent Events.
func (h *AskHandler) stream(w http.ResponseWriter, r *http.Request, req rag.AskRequest) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	req.OnToken = func(token string) error {
		// Continuation lines of a multi-line token need their own data: prefix
		if _, err := fmt.Fprintf(w, "data: %s\n\n", strings.ReplaceAll(token, "\n", "\ndata: ")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	resp, err := h.syncService.Ask(ctx, repoParam(r), req)
	if err != nil {
		logger.ErrorContext(ctx, "error streaming answer", "error", err)
		payload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(resp.References)
	if err == nil {
		_, _ = fmt.Fprintf(w, "event: references\ndata: %s\n\n", payload)
	}
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func boolParam(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "true" || v == "1"
}
