package handlers

import (
	"log/slog"
	"net/http"

	"activity-sync/internal/metrics"
	"activity-sync/internal/middleware"
)

// HealthChecker reports whether the local store is usable
type HealthChecker interface {
	Health() error
}

// NewMux wires the control API routes. Everything but /health requires
// the control API key when one is configured.
func NewMux(syncHandler *SyncHandler, sessionHandler *SessionHandler, store HealthChecker, apiKey string) *http.ServeMux {
	protect := middleware.RequireAPIKey(apiKey, slog.Default())
	route := func(endpoint string, handler http.HandlerFunc) http.Handler {
		return middleware.WrapHandler(endpoint, protect(handler).ServeHTTP)
	}

	mux := http.NewServeMux()

	mux.Handle("/sync", route(metrics.EndpointSync, syncHandler.HandleSync))
	mux.Handle("/activities/submit", route(metrics.EndpointSubmit, syncHandler.HandleSubmit))
	mux.Handle("/activities", route(metrics.EndpointActivities, syncHandler.HandleActivities))
	mux.Handle("/reconcile", route(metrics.EndpointReconcile, syncHandler.HandleReconcile))
	mux.Handle("/status", route(metrics.EndpointStatus, syncHandler.HandleStatus))
	mux.Handle("/sync-enabled", route(metrics.EndpointSyncEnabled, syncHandler.HandleSyncEnabled))
	mux.Handle("/session", route(metrics.EndpointSession, sessionHandler.HandleSession))

	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := store.Health(); err != nil {
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	return mux
}
