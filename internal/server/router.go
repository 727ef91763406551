// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	apierrors "github.com/tracedeck/tracedeck/internal/errors"
	"github.com/tracedeck/tracedeck/internal/server/handlers"
	"github.com/tracedeck/tracedeck/internal/storage"
)

// Config carries router-level settings.
type Config struct {
	Version string
	Export  storage.ExportConfig
}

// NewRouter creates and configures the HTTP router. The API is read-only:
// the dataset is produced upstream and mounted as files.
func NewRouter(store *storage.Store, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	ih := handlers.NewInstancesHandler(store)
	hh := handlers.NewHeuristicsHandler(store)
	healthh := handlers.NewHealthHandler(cfg.Version)

	mux.Handle("GET /api/health", Wrap(healthh.Health))

	// Dataset identity and per-instance event traces.
	mux.Handle("GET /api/instances", Wrap(ih.Manifest))
	mux.Handle("GET /api/instances/{id}", Wrap(ih.GetInstance))

	// Heuristics table, plus the bulk CSV export the client links to.
	mux.Handle("GET /api/heuristics", Wrap(hh.List))
	lim := newLimiter(cfg.Export.Requests, cfg.Export.Window(), cfg.Export.Burst)
	mux.Handle("GET /api/heuristics/csv", rateLimit(lim, http.HandlerFunc(hh.ExportCSV)))

	return logRequests(mux)
}

// rateLimit rejects requests over the per-IP budget with a structured 429.
func rateLimit(l *limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			e := apierrors.RateLimited()
			writeErrorResponseWithCode(w, e.StatusCode(), e.Code(), e.Error(), e.Details())
			return
		}
		next.ServeHTTP(w, r)
	})
}
