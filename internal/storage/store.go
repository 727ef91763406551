// Package storage implements the on-disk dataset store behind the
// exploration server.
//
// A dataset directory looks like:
//
//	<dir>/instances/<id>.jsonl   one event-trace file per instance
//	<dir>/heuristics.jsonl       per-instance heuristic score rows
//
// The instance id is the file stem. The manifest order is the lexical order
// of the instance files, which is how the upstream pipeline names recording
// batches; the checksum is the same fingerprint the client verifies.
package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tracedeck/tracedeck/internal/dataset"
	apierrors "github.com/tracedeck/tracedeck/internal/errors"
	"github.com/tracedeck/tracedeck/internal/models"
)

const instanceExt = ".jsonl"

// Store serves a read-only view over one dataset directory. Safe for
// concurrent use; Reload swaps the whole view atomically.
type Store struct {
	dir string

	mu         sync.RWMutex
	checksum   string
	ids        []string
	idSet      map[string]struct{}
	heuristics *JSONLTable[models.HeuristicRecord]
}

// Open scans the dataset directory and loads the heuristics table.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir}
	table, err := NewJSONLTable[models.HeuristicRecord](filepath.Join(dir, "heuristics.jsonl"))
	if err != nil {
		return nil, err
	}
	s.heuristics = table
	if err := s.reloadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the dataset directory the store was opened on.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) reloadIndex() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, "instances"))
	if err != nil {
		return fmt.Errorf("failed to scan instances directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), instanceExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), instanceExt))
	}
	slices.Sort(ids)
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	s.mu.Lock()
	s.ids = ids
	s.idSet = idSet
	s.checksum = dataset.Fingerprint(ids)
	s.mu.Unlock()
	return nil
}

// Reload rescans the instance directory and re-reads the heuristics table.
// Called by the directory watcher when the dataset changes on disk.
func (s *Store) Reload() error {
	if err := s.heuristics.Reload(); err != nil {
		return err
	}
	return s.reloadIndex()
}

// Manifest returns the dataset identity: checksum and ordered instance ids.
func (s *Store) Manifest() models.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.ids))
	copy(ids, s.ids)
	return models.Manifest{Checksum: s.checksum, InstanceIDs: ids}
}

// Instance returns the raw event trace for one instance. The id is checked
// against the scanned index rather than used to build a path directly, so a
// crafted id cannot escape the dataset directory.
func (s *Store) Instance(id string) (*models.InstanceResponse, error) {
	s.mu.RLock()
	_, ok := s.idSet[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apierrors.InstanceNotFound(id)
	}

	f, err := os.Open(filepath.Join(s.dir, "instances", id+instanceExt))
	if err != nil {
		return nil, apierrors.Storage("failed to open instance file", err)
	}
	defer f.Close()

	var events []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		events = append(events, json.RawMessage(slices.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, apierrors.Storage("failed to read instance file", err)
	}
	return &models.InstanceResponse{InstanceID: id, Events: events}, nil
}

// Heuristics returns all heuristic records.
func (s *Store) Heuristics() []models.HeuristicRecord {
	return s.heuristics.All()
}

// WriteCSV streams the heuristics table as CSV: one row per instance in
// manifest order, columns are the sorted union of score names across all
// records. Instances without a record get empty cells.
func (s *Store) WriteCSV(w io.Writer) error {
	manifest := s.Manifest()
	records := s.heuristics.All()

	byID := make(map[string]models.HeuristicRecord, len(records))
	colSet := make(map[string]struct{})
	for _, rec := range records {
		byID[rec.InstanceID] = rec
		for name := range rec.Scores {
			colSet[name] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for name := range colSet {
		cols = append(cols, name)
	}
	slices.Sort(cols)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"instance_id"}, cols...)); err != nil {
		return err
	}
	row := make([]string, len(cols)+1)
	for _, id := range manifest.InstanceIDs {
		row[0] = id
		rec, ok := byID[id]
		for i, name := range cols {
			row[i+1] = ""
			if !ok {
				continue
			}
			if v, has := rec.Scores[name]; has {
				row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
