package handlers

import (
	"net/http"
	"strconv"

	"issuesync/internal/service"
)

// StatusHandler reports what is stored for a repository.
type StatusHandler struct {
	syncService service.SyncService
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(syncService service.SyncService) *StatusHandler {
	return &StatusHandler{syncService: syncService}
}

// ServeHTTP returns stored counts and the latest sync.
//
// swagger:route GET /api/repos/{owner}/{name}/status repositoryStatus
//
// responses:
//
//	'200': repositoryStatus
//	'400': ErrorResponse
//	'404': ErrorResponse
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.syncService.Status(ctx, repoParam(r))
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, status)
}

// LogsHandler lists the sync log of a repository.
type LogsHandler struct {
	syncService service.SyncService
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(syncService service.SyncService) *LogsHandler {
	return &LogsHandler{syncService: syncService}
}

// LogsResponse wraps the sync log rows, newest first.
//
// swagger:model LogsResponse
type LogsResponse struct {
	Entries []service.LogEntry `json:"entries"`
}

// ServeHTTP returns the most recent sync log rows. The limit query parameter defaults to 20.
//
// swagger:route GET /api/repos/{owner}/{name}/logs syncLogs
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := h.syncService.Logs(ctx, repoParam(r), limit)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, LogsResponse{Entries: entries})
}
