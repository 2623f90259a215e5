package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"issuesync/internal/handlers"
	"issuesync/internal/service"
	"issuesync/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	SyncService service.SyncService
	VectorStore vectorstore.VectorStore
	// Models is optional. Without it the health check skips the LLM.
	Models   handlers.ModelChecker
	LLMModel string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Models, deps.LLMModel)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/repos/{owner}/{name}", func(r chi.Router) {
			r.Method(http.MethodPost, "/sync", handlers.NewSyncHandler(deps.SyncService))
			r.Method(http.MethodPost, "/reconcile", handlers.NewReconcileHandler(deps.SyncService))
			r.Method(http.MethodGet, "/status", handlers.NewStatusHandler(deps.SyncService))
			r.Method(http.MethodGet, "/logs", handlers.NewLogsHandler(deps.SyncService))
			r.Method(http.MethodPost, "/ask", handlers.NewAskHandler(deps.SyncService))
		})
	})

	return r
}
