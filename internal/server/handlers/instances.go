// Package handlers implements the HTTP request handlers for the exploration API.
package handlers

import (
	"context"

	"github.com/tracedeck/tracedeck/internal/models"
	"github.com/tracedeck/tracedeck/internal/storage"
)

// InstancesHandler serves the dataset manifest and per-instance event traces.
type InstancesHandler struct {
	store *storage.Store
}

// NewInstancesHandler creates a new instances handler.
func NewInstancesHandler(store *storage.Store) *InstancesHandler {
	return &InstancesHandler{store: store}
}

// Manifest returns the dataset identity: content checksum and the complete
// ordered instance id list. This is the payload the dataset client verifies.
func (h *InstancesHandler) Manifest(ctx context.Context, req models.ManifestRequest) (*models.Manifest, error) {
	m := h.store.Manifest()
	return &m, nil
}

// GetInstance returns the raw event trace for one instance.
func (h *InstancesHandler) GetInstance(ctx context.Context, req models.GetInstanceRequest) (*models.InstanceResponse, error) {
	return h.store.Instance(req.ID)
}
