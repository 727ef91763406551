// Package models defines the core data structures exchanged between the
// exploration server and the dataset client.
package models

import "encoding/json"

// Manifest is the lightweight identity payload for a dataset: its content
// checksum and the complete ordered list of instance ids. The order is
// server-defined and preserved end to end.
type Manifest struct {
	Checksum    string   `json:"checksum"`
	InstanceIDs []string `json:"instanceIds"`
}

// HeuristicRecord is one per-instance row of the heuristics table. Scores is
// a server-defined mapping of heuristic name to value; this layer treats it
// as opaque beyond being keyed by instance id.
type HeuristicRecord struct {
	InstanceID string             `json:"instance_id"`
	Scores     map[string]float64 `json:"scores"`
}

// GetInstanceRequest addresses a single instance event trace.
type GetInstanceRequest struct {
	ID string `path:"id"`
}

// InstanceResponse carries the raw event trace for one instance. Events are
// passed through verbatim; the server does not interpret them.
type InstanceResponse struct {
	InstanceID string            `json:"instanceId"`
	Events     []json.RawMessage `json:"events"`
}

// ManifestRequest is the (empty) request for the dataset manifest.
type ManifestRequest struct{}

// HeuristicsRequest is the (empty) request for the heuristics table.
type HeuristicsRequest struct{}

// HeuristicsResponse carries the full heuristics table.
type HeuristicsResponse struct {
	Records []HeuristicRecord `json:"records"`
}

// HealthRequest is the (empty) health check request.
type HealthRequest struct{}

// HealthResponse reports server liveness and build version.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
