package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"issuesync/internal/contextutil"
	"issuesync/internal/vectorstore"
)

// ModelChecker reports whether a model is served.
type ModelChecker interface {
	HasModel(ctx context.Context, modelName string) (bool, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        vectorstore.VectorStore
	models             ModelChecker
	modelName          string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. models may be nil to skip the model check.
func NewHealthHandler(vectorStore vectorstore.VectorStore, models ModelChecker, modelName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		models:             models,
		modelName:          modelName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK if healthy or degraded, 503 Service Unavailable if the vector store is down.
//
// swagger:route GET /api/health healthCheck
//
// # Health check endpoint
//
// responses:
//
//	'200': HealthResponse
//	'503': HealthResponse
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	if h.checkVectorStore(checkCtx, logger) {
		checks["vector_store"] = "ok"
	} else {
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
	}

	// The model only matters for ask, so a missing model degrades instead of failing
	modelOK := true
	if h.models != nil {
		switch ok, err := h.models.HasModel(checkCtx, h.modelName); {
		case err != nil:
			logger.WarnContext(ctx, "model health check failed", "error", err)
			checks["llm"] = "error"
			issues = append(issues, "llm_unavailable")
			modelOK = false
		case !ok:
			checks["llm"] = "model_missing"
			issues = append(issues, "llm_model_missing")
			modelOK = false
		default:
			checks["llm"] = "ok"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case checks["vector_store"] != "ok":
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case !modelOK:
		status = "degraded"
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// checkVectorStore checks if the vector store answers. Collections are per repository,
// so a missing collection is not a failure.
func (h *HealthHandler) checkVectorStore(ctx context.Context, logger *slog.Logger) bool {
	if _, err := h.vectorStore.CollectionExists(ctx, "health_probe"); err != nil {
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		return false
	}
	return true
}
