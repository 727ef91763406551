package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tracedeck/tracedeck/internal/models"
)

// fixtureServer is a fake exploration server whose payloads can be swapped
// between requests.
type fixtureServer struct {
	mu         sync.Mutex
	manifest   models.Manifest
	manifestOK bool
	records    []models.HeuristicRecord
	recordsOK  bool
	srv        *httptest.Server
}

func newFixtureServer(t *testing.T, ids []string, records []models.HeuristicRecord) *fixtureServer {
	t.Helper()
	f := &fixtureServer{
		manifest:   models.Manifest{Checksum: Fingerprint(ids), InstanceIDs: ids},
		manifestOK: true,
		records:    records,
		recordsOK:  true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/instances", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.manifestOK {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.manifest)
	})
	mux.HandleFunc("GET /api/heuristics", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.recordsOK {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(models.HeuristicsResponse{Records: f.records})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixtureServer) apiBase() string {
	return f.srv.URL + "/api"
}

func (f *fixtureServer) setManifest(m models.Manifest, ok bool) {
	f.mu.Lock()
	f.manifest = m
	f.manifestOK = ok
	f.mu.Unlock()
}

func rec(id string, scores map[string]float64) models.HeuristicRecord {
	return models.HeuristicRecord{InstanceID: id, Scores: scores}
}

func TestLoadManifest(t *testing.T) {
	ctx := context.Background()

	t.Run("success populates checksum and ids together", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2", "i3"}, nil)
		c := New(f.apiBase())

		if c.IndexLoaded() {
			t.Fatal("index loaded before any fetch")
		}
		if c.Checksum() != "" || c.InstanceIDs() != nil {
			t.Fatal("checksum or ids populated before load")
		}
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatalf("LoadManifest() error = %v", err)
		}
		if !c.IndexLoaded() {
			t.Fatal("index not loaded after successful fetch")
		}
		if got := c.Checksum(); got != Fingerprint([]string{"i1", "i2", "i3"}) {
			t.Errorf("Checksum() = %q", got)
		}
		ids := c.InstanceIDs()
		if len(ids) != 3 || ids[0] != "i1" || ids[1] != "i2" || ids[2] != "i3" {
			t.Errorf("InstanceIDs() = %v, want server order preserved", ids)
		}
		if err := c.ManifestErr(); err != nil {
			t.Errorf("ManifestErr() = %v after success", err)
		}
	})

	t.Run("duplicates are removed preserving first occurrence", func(t *testing.T) {
		deduped := []string{"a", "b", "c"}
		f := newFixtureServer(t, deduped, nil)
		// The server asserts the checksum of the deduped list but repeats ids.
		f.setManifest(models.Manifest{
			Checksum:    Fingerprint(deduped),
			InstanceIDs: []string{"a", "b", "a", "c", "b"},
		}, true)
		c := New(f.apiBase())
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatalf("LoadManifest() error = %v", err)
		}
		ids := c.InstanceIDs()
		if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
			t.Errorf("InstanceIDs() = %v, want deduped first-occurrence order", ids)
		}
	})

	t.Run("checksum mismatch yields IntegrityError and recoverable state", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, nil)
		f.setManifest(models.Manifest{Checksum: "abc123", InstanceIDs: []string{"i1", "i2"}}, true)
		c := New(f.apiBase())

		err := c.LoadManifest(ctx)
		var ierr *IntegrityError
		if !errors.As(err, &ierr) {
			t.Fatalf("LoadManifest() error = %v, want *IntegrityError", err)
		}
		if ierr.Claimed != "abc123" {
			t.Errorf("Claimed = %q", ierr.Claimed)
		}
		if c.IndexLoaded() {
			t.Fatal("index loaded despite checksum mismatch")
		}
		if !errors.As(c.ManifestErr(), &ierr) {
			t.Errorf("ManifestErr() = %v, want retained IntegrityError", c.ManifestErr())
		}

		// A later reload with a matching checksum succeeds.
		f.setManifest(models.Manifest{Checksum: Fingerprint([]string{"i1", "i2"}), InstanceIDs: []string{"i1", "i2"}}, true)
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatalf("reload error = %v", err)
		}
		if !c.IndexLoaded() {
			t.Fatal("index not loaded after successful reload")
		}
		if c.ManifestErr() != nil {
			t.Errorf("ManifestErr() = %v, want nil after success", c.ManifestErr())
		}
	})

	t.Run("transport failure yields NetworkError", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, nil)
		f.setManifest(models.Manifest{}, false)
		c := New(f.apiBase())

		err := c.LoadManifest(ctx)
		var nerr *NetworkError
		if !errors.As(err, &nerr) {
			t.Fatalf("LoadManifest() error = %v, want *NetworkError", err)
		}
		if c.IndexLoaded() {
			t.Fatal("index loaded despite failed fetch")
		}
	})

	t.Run("unreachable server yields NetworkError", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, nil)
		base := f.apiBase()
		f.srv.Close()
		c := New(base)
		var nerr *NetworkError
		if err := c.LoadManifest(ctx); !errors.As(err, &nerr) {
			t.Fatalf("LoadManifest() error = %v, want *NetworkError", err)
		}
	})

	t.Run("no-op once loaded", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, nil)
		c := New(f.apiBase())
		events := c.Subscribe()
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if got := <-events; got != EventIndexReady {
			t.Errorf("event = %v, want index-ready", got)
		}
		select {
		case ev := <-events:
			t.Errorf("unexpected second event %v, flag must flip exactly once", ev)
		default:
		}
	})
}

func TestLoadHeuristics(t *testing.T) {
	ctx := context.Background()

	t.Run("independent of manifest", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, []models.HeuristicRecord{
			rec("i1", map[string]float64{"score": 0.5}),
		})
		c := New(f.apiBase())

		// Heuristics first, manifest second.
		if err := c.LoadHeuristics(ctx); err != nil {
			t.Fatalf("LoadHeuristics() error = %v", err)
		}
		if !c.HeuristicsLoaded() {
			t.Fatal("heuristics not loaded")
		}
		if c.IndexLoaded() {
			t.Fatal("heuristics load must not flip indexLoaded")
		}
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		got, ok := c.Heuristics("i1")
		if !ok || got.Scores["score"] != 0.5 {
			t.Errorf("Heuristics(i1) = %+v, %v", got, ok)
		}
	})

	t.Run("failure leaves flag false and index untouched", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, nil)
		f.recordsOK = false
		c := New(f.apiBase())

		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		err := c.LoadHeuristics(ctx)
		var nerr *NetworkError
		if !errors.As(err, &nerr) {
			t.Fatalf("LoadHeuristics() error = %v, want *NetworkError", err)
		}
		if c.HeuristicsLoaded() {
			t.Fatal("heuristics flag set despite failure")
		}
		if !c.IndexLoaded() {
			t.Fatal("heuristics failure corrupted indexLoaded")
		}
		// Absent is a defined result, not an error.
		if _, ok := c.Heuristics("i1"); ok {
			t.Error("Heuristics(i1) = present, want absent")
		}
	})
}

func TestSkewPolicies(t *testing.T) {
	ctx := context.Background()
	records := []models.HeuristicRecord{
		rec("i1", map[string]float64{"s": 1}),
		rec("zz", map[string]float64{"s": 2}),
	}

	t.Run("warn keeps unknown records", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, records)
		c := New(f.apiBase())
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if err := c.LoadHeuristics(ctx); err != nil {
			t.Fatalf("LoadHeuristics() error = %v", err)
		}
		if _, ok := c.Heuristics("zz"); !ok {
			t.Error("SkewWarn dropped the unknown record")
		}
		if c.HasInstance("zz") {
			t.Error("HasInstance(zz) = true, heuristics must not extend the index")
		}
	})

	t.Run("drop removes unknown records", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, records)
		c := New(f.apiBase(), WithSkewPolicy(SkewDrop))
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if err := c.LoadHeuristics(ctx); err != nil {
			t.Fatalf("LoadHeuristics() error = %v", err)
		}
		if _, ok := c.Heuristics("zz"); ok {
			t.Error("SkewDrop kept the unknown record")
		}
		if _, ok := c.Heuristics("i1"); !ok {
			t.Error("SkewDrop dropped a known record")
		}
	})

	t.Run("fail rejects the load", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, records)
		c := New(f.apiBase(), WithSkewPolicy(SkewFail))
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		err := c.LoadHeuristics(ctx)
		var serr *SkewError
		if !errors.As(err, &serr) {
			t.Fatalf("LoadHeuristics() error = %v, want *SkewError", err)
		}
		if len(serr.IDs) != 1 || serr.IDs[0] != "zz" {
			t.Errorf("SkewError.IDs = %v", serr.IDs)
		}
		if c.HeuristicsLoaded() {
			t.Error("heuristics flag set despite skew failure")
		}
	})

	t.Run("fail degrades to drop when manifest arrives second", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, records)
		c := New(f.apiBase(), WithSkewPolicy(SkewFail))
		if err := c.LoadHeuristics(ctx); err != nil {
			t.Fatalf("LoadHeuristics() error = %v", err)
		}
		if !c.HeuristicsLoaded() {
			t.Fatal("heuristics not loaded before manifest")
		}
		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if !c.HeuristicsLoaded() {
			t.Error("heuristicsLoaded reverted, flag must be monotonic")
		}
		if _, ok := c.Heuristics("zz"); ok {
			t.Error("unknown record survived reconciliation")
		}
		if _, ok := c.Heuristics("i1"); !ok {
			t.Error("known record dropped during reconciliation")
		}
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("events arrive in transition order", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, []models.HeuristicRecord{rec("i1", nil)})
		c := New(f.apiBase())
		events := c.Subscribe()

		if err := c.LoadManifest(ctx); err != nil {
			t.Fatal(err)
		}
		if err := c.LoadHeuristics(ctx); err != nil {
			t.Fatal(err)
		}
		if got := <-events; got != EventIndexReady {
			t.Errorf("first event = %v, want index-ready", got)
		}
		if got := <-events; got != EventHeuristicsReady {
			t.Errorf("second event = %v, want heuristics-ready", got)
		}
	})

	t.Run("failure events are distinct per axis", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1"}, nil)
		f.manifestOK = false
		f.recordsOK = false
		c := New(f.apiBase())
		events := c.Subscribe()

		_ = c.LoadManifest(ctx)
		_ = c.LoadHeuristics(ctx)
		if got := <-events; got != EventIndexFailed {
			t.Errorf("first event = %v, want index-failed", got)
		}
		if got := <-events; got != EventHeuristicsFailed {
			t.Errorf("second event = %v, want heuristics-failed", got)
		}
	})

	t.Run("Start drives both loads concurrently", func(t *testing.T) {
		f := newFixtureServer(t, []string{"i1", "i2"}, []models.HeuristicRecord{rec("i2", nil)})
		c := New(f.apiBase())
		events := c.Subscribe()
		c.Start(ctx)

		seen := map[Event]bool{}
		for range 2 {
			seen[<-events] = true
		}
		if !seen[EventIndexReady] || !seen[EventHeuristicsReady] {
			t.Errorf("events seen = %v, want both ready events", seen)
		}
		if !c.IndexLoaded() || !c.HeuristicsLoaded() {
			t.Error("flags not both set after Start completed")
		}
	})
}
