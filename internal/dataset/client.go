// Package dataset implements the dataset index and synchronization client:
// it loads a dataset's identity (checksum plus the full ordered instance-id
// list) and its per-instance heuristics table from the exploration server,
// tracks loading progress through two independent monotonic readiness flags,
// and exposes lookup, sampling and export operations to the presentation
// layer.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tracedeck/tracedeck/internal/models"
)

// Event is a readiness transition observable through Subscribe.
type Event int

const (
	// EventIndexReady fires when the manifest loaded and passed verification.
	EventIndexReady Event = iota
	// EventIndexFailed fires when a manifest load attempt failed.
	EventIndexFailed
	// EventHeuristicsReady fires when the heuristics table loaded.
	EventHeuristicsReady
	// EventHeuristicsFailed fires when a heuristics load attempt failed.
	EventHeuristicsFailed
)

func (e Event) String() string {
	switch e {
	case EventIndexReady:
		return "index-ready"
	case EventIndexFailed:
		return "index-failed"
	case EventHeuristicsReady:
		return "heuristics-ready"
	case EventHeuristicsFailed:
		return "heuristics-failed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// SkewPolicy selects what happens to heuristic records whose instance id is
// absent from the manifest. Enforced at merge time: when the manifest loads
// after a successful heuristics load, SkewFail cannot revert the monotonic
// heuristicsLoaded flag and degrades to dropping the offending records.
type SkewPolicy int

const (
	// SkewWarn keeps the records and logs a warning. The default.
	SkewWarn SkewPolicy = iota
	// SkewDrop silently drops the records.
	SkewDrop
	// SkewFail fails the heuristics load with a *SkewError.
	SkewFail
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport used for both loaders.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithSkewPolicy sets the reconciliation policy for heuristic records not
// present in the manifest.
func WithSkewPolicy(p SkewPolicy) Option {
	return func(c *Client) { c.skew = p }
}

// Client is the per-session dataset handle. Construct one at application
// start, call Start (or the two Load methods), and pass it by reference to
// every consumer; it holds the only copy of the index state.
//
// Each readiness flag transitions false to true at most once and never
// reverts. There is no dataset hot-swap: a caller wanting a fresh dataset
// discards the client and constructs a new one.
type Client struct {
	apiBase string
	hc      *http.Client
	skew    SkewPolicy

	mu               sync.Mutex
	checksum         string
	ids              []string
	idSet            map[string]struct{}
	heuristics       map[string]models.HeuristicRecord
	indexLoaded      bool
	heuristicsLoaded bool
	manifestErr      error
	heuristicsErr    error
	subs             []chan Event
}

// New creates a client for the exploration server at apiBase
// (e.g. "http://localhost:7480/api"). No request is issued until Start or
// one of the Load methods is called.
func New(apiBase string, opts ...Option) *Client {
	c := &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		hc:         http.DefaultClient,
		heuristics: make(map[string]models.HeuristicRecord),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIBase returns the server base URL the client was constructed with.
func (c *Client) APIBase() string {
	return c.apiBase
}

// Start launches the manifest and heuristics loads concurrently. The two
// have no ordering dependency and may complete in either order; consumers
// gate on each readiness flag independently.
func (c *Client) Start(ctx context.Context) {
	go func() {
		if err := c.LoadManifest(ctx); err != nil {
			slog.WarnContext(ctx, "Manifest load failed", "err", err)
		}
	}()
	go func() {
		if err := c.LoadHeuristics(ctx); err != nil {
			slog.WarnContext(ctx, "Heuristics load failed", "err", err)
		}
	}()
}

// Subscribe returns a channel delivering readiness transitions in the order
// they occur. The channel is buffered; a subscriber that stops draining
// loses events rather than blocking a loader.
func (c *Client) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// LoadManifest fetches the dataset identity from {apiBase}/instances,
// verifies the asserted checksum against the received ids, and only then
// publishes checksum and id list together with the indexLoaded flag. On
// failure the flag stays false and the error is retained for ManifestErr;
// there is no automatic retry, but the method may be called again. Once the
// index is loaded further calls are no-ops.
func (c *Client) LoadManifest(ctx context.Context) error {
	c.mu.Lock()
	if c.indexLoaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var m models.Manifest
	if err := c.getJSON(ctx, "/instances", &m); err != nil {
		nerr := &NetworkError{Endpoint: "/instances", Err: err}
		c.failManifest(nerr)
		return nerr
	}

	// Dedup on ingest, preserving first-occurrence order.
	ids := make([]string, 0, len(m.InstanceIDs))
	idSet := make(map[string]struct{}, len(m.InstanceIDs))
	for _, id := range m.InstanceIDs {
		if _, ok := idSet[id]; ok {
			continue
		}
		idSet[id] = struct{}{}
		ids = append(ids, id)
	}

	if computed := Fingerprint(ids); computed != m.Checksum {
		ierr := &IntegrityError{Claimed: m.Checksum, Computed: computed}
		c.failManifest(ierr)
		return ierr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexLoaded {
		// Lost a race against a concurrent load; first writer wins.
		return nil
	}
	c.checksum = m.Checksum
	c.ids = ids
	c.idSet = idSet
	c.indexLoaded = true
	c.manifestErr = nil
	c.reconcileLocked()
	c.notifyLocked(EventIndexReady)
	slog.InfoContext(ctx, "Dataset index loaded", "instances", len(ids), "checksum", m.Checksum)
	return nil
}

// LoadHeuristics fetches the heuristics table from {apiBase}/heuristics and
// merges it into the index. Independent of LoadManifest: it may run before,
// during or after it. On failure heuristicsLoaded stays false; consumers
// omit the heuristics panel rather than showing it empty.
func (c *Client) LoadHeuristics(ctx context.Context) error {
	c.mu.Lock()
	if c.heuristicsLoaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var resp models.HeuristicsResponse
	if err := c.getJSON(ctx, "/heuristics", &resp); err != nil {
		nerr := &NetworkError{Endpoint: "/heuristics", Err: err}
		c.mu.Lock()
		c.heuristicsErr = nerr
		c.notifyLocked(EventHeuristicsFailed)
		c.mu.Unlock()
		return nerr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heuristicsLoaded {
		return nil
	}

	var unknown []string
	if c.indexLoaded {
		for _, rec := range resp.Records {
			if _, ok := c.idSet[rec.InstanceID]; !ok {
				unknown = append(unknown, rec.InstanceID)
			}
		}
	}
	if len(unknown) > 0 && c.skew == SkewFail {
		serr := &SkewError{IDs: unknown}
		c.heuristicsErr = serr
		c.notifyLocked(EventHeuristicsFailed)
		return serr
	}

	merged := make(map[string]models.HeuristicRecord, len(resp.Records))
	for _, rec := range resp.Records {
		if c.skew == SkewDrop && c.indexLoaded {
			if _, ok := c.idSet[rec.InstanceID]; !ok {
				continue
			}
		}
		merged[rec.InstanceID] = rec
	}
	if len(unknown) > 0 {
		switch c.skew {
		case SkewDrop:
			slog.DebugContext(ctx, "Dropped heuristics for unknown instances", "count", len(unknown))
		default:
			slog.WarnContext(ctx, "Heuristics reference instances absent from manifest", "count", len(unknown), "ids", unknown)
		}
	}

	c.heuristics = merged
	c.heuristicsLoaded = true
	c.heuristicsErr = nil
	c.notifyLocked(EventHeuristicsReady)
	slog.InfoContext(ctx, "Heuristics loaded", "records", len(merged))
	return nil
}

// reconcileLocked re-checks merged heuristics against a freshly loaded
// manifest, for the heuristics-before-manifest ordering. heuristicsLoaded is
// monotonic, so SkewFail degrades to dropping the offending records here.
func (c *Client) reconcileLocked() {
	if !c.heuristicsLoaded {
		return
	}
	var unknown []string
	for id := range c.heuristics {
		if _, ok := c.idSet[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return
	}
	if c.skew == SkewWarn {
		slog.Warn("Heuristics reference instances absent from manifest", "count", len(unknown), "ids", unknown)
		return
	}
	for _, id := range unknown {
		delete(c.heuristics, id)
	}
	slog.Warn("Dropped heuristics for instances absent from manifest", "count", len(unknown))
}

func (c *Client) failManifest(err error) {
	c.mu.Lock()
	c.manifestErr = err
	c.notifyLocked(EventIndexFailed)
	c.mu.Unlock()
}

// notifyLocked fans the event out to subscribers. Delivery order matches
// transition order because all notifications happen under mu.
func (c *Client) notifyLocked(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Subscriber queue full, dropping event", "event", ev)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
