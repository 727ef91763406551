package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tracedeck/tracedeck/internal/models"
	"github.com/tracedeck/tracedeck/internal/storage"
)

// HeuristicsHandler serves the per-instance heuristic score table and its
// CSV export.
type HeuristicsHandler struct {
	store *storage.Store
}

// NewHeuristicsHandler creates a new heuristics handler.
func NewHeuristicsHandler(store *storage.Store) *HeuristicsHandler {
	return &HeuristicsHandler{store: store}
}

// List returns all heuristic records.
func (h *HeuristicsHandler) List(ctx context.Context, req models.HeuristicsRequest) (*models.HeuristicsResponse, error) {
	return &models.HeuristicsResponse{Records: h.store.Heuristics()}, nil
}

// ExportCSV streams the heuristics table as a CSV download. Raw handler:
// the response is a file stream, not a JSON envelope.
func (h *HeuristicsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="heuristics.csv"`)
	if err := h.store.WriteCSV(w); err != nil {
		// Headers are already gone; log and abort the stream.
		slog.ErrorContext(r.Context(), "CSV export failed", "err", err)
	}
}
