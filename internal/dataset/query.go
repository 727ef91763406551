package dataset

import (
	"math/rand/v2"

	"github.com/tracedeck/tracedeck/internal/models"
)

// IndexLoaded reports whether the manifest loaded and passed verification.
// Monotonic: once true it stays true for the client's lifetime.
func (c *Client) IndexLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLoaded
}

// HeuristicsLoaded reports whether the heuristics table loaded. Independent
// of IndexLoaded; neither implies the other.
func (c *Client) HeuristicsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heuristicsLoaded
}

// Checksum returns the dataset content checksum, or "" before the index
// loads. Set atomically with the instance id list.
func (c *Client) Checksum() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checksum
}

// InstanceIDs returns a copy of the instance id list in server order, or nil
// before the index loads.
func (c *Client) InstanceIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		return nil
	}
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return ids
}

// ManifestErr returns the most recent manifest load failure, or nil. Cleared
// by a subsequent successful load.
func (c *Client) ManifestErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manifestErr
}

// HeuristicsErr returns the most recent heuristics load failure, or nil.
func (c *Client) HeuristicsErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heuristicsErr
}

// HasInstance reports whether id is part of the dataset. Before the index
// loads this is a vacuous false; it never blocks and never errors. Callers
// that need to distinguish "not found" from "not loaded" check IndexLoaded
// first.
func (c *Client) HasInstance(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.idSet[id]
	return ok
}

// SampleRandom returns a uniformly random instance id. Each call is an
// independent unseeded draw. ok is false when the index is empty or not yet
// loaded.
func (c *Client) SampleRandom() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ids) == 0 {
		return "", false
	}
	return c.ids[rand.IntN(len(c.ids))], true
}

// ExportURL returns the server's bulk CSV export endpoint. The export itself
// is generated entirely server-side; this client only constructs the URL.
func (c *Client) ExportURL() string {
	return c.apiBase + "/heuristics/csv"
}

// Heuristics returns the heuristic record for id. ok is false when no record
// exists, which is an expected result rather than an error: heuristics are
// optional per instance.
func (c *Client) Heuristics(id string) (models.HeuristicRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.heuristics[id]
	return rec, ok
}
