package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"issuesync/internal/contextutil"
	"issuesync/internal/service"
)

// SyncHandler handles HTTP requests that trigger a repository sync.
type SyncHandler struct {
	syncService service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// SyncRequest is the optional body of a sync request.
//
// swagger:model SyncRequest
type SyncRequest struct {
	// Since replaces the stored watermark (RFC 3339).
	Since *time.Time `json:"since,omitempty"`
}

// SyncAccepted is returned when a sync runs in the background.
//
// swagger:model SyncAccepted
type SyncAccepted struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP runs a sync of the repository.
//
// swagger:route POST /api/repos/{owner}/{name}/sync syncRepository
//
// # Sync a repository
//
// Fetches issues changed since the last sync and reconciles the vector index.
// With async=true the sync runs in the background and 202 is returned immediately.
//
// responses:
//
//	'200': syncResult
//	'202': SyncAccepted
//	'400': ErrorResponse
//	'409': ErrorResponse
//	'502': ErrorResponse
//	'500': ErrorResponse
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo := repoParam(r)
	opts := service.SyncOptions{Since: req.Since}

	if r.URL.Query().Get("async") == "true" {
		// The sync outlives the request
		bgCtx := context.WithoutCancel(ctx)
		go func() {
			result, err := h.syncService.Sync(bgCtx, repo, opts)
			if err != nil {
				logger.ErrorContext(bgCtx, "background sync failed", "repo", repo, "error", err)
				return
			}
			logger.InfoContext(bgCtx, "background sync completed", "repo", repo, "new", result.New, "updated", result.Updated)
		}()
		writeJSON(ctx, w, http.StatusAccepted, SyncAccepted{
			Message: "Sync started. Check server logs or the sync log for progress.",
			Status:  "accepted",
		})
		return
	}

	result, err := h.syncService.Sync(ctx, repo, opts)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

// ReconcileHandler handles HTTP requests that repair index debt.
type ReconcileHandler struct {
	syncService service.SyncService
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(syncService service.SyncService) *ReconcileHandler {
	return &ReconcileHandler{syncService: syncService}
}

// ServeHTTP reconciles the vector index of the repository without fetching.
//
// swagger:route POST /api/repos/{owner}/{name}/reconcile reconcileRepository
func (h *ReconcileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.syncService.Reconcile(ctx, repoParam(r))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}
