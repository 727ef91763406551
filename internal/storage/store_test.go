package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tracedeck/tracedeck/internal/dataset"
	apierrors "github.com/tracedeck/tracedeck/internal/errors"
	"github.com/tracedeck/tracedeck/internal/models"
)

// writeDataset lays out a dataset directory in a temp dir.
func writeDataset(t *testing.T, instances map[string][]string, heuristics []models.HeuristicRecord) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "instances"), 0o755); err != nil {
		t.Fatal(err)
	}
	for id, events := range instances {
		var buf bytes.Buffer
		for _, ev := range events {
			buf.WriteString(ev)
			buf.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, "instances", id+".jsonl"), buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if heuristics != nil {
		table, err := NewJSONLTable[models.HeuristicRecord](filepath.Join(dir, "heuristics.jsonl"))
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range heuristics {
			if err := table.Append(rec); err != nil {
				t.Fatal(err)
			}
		}
	}
	return dir
}

func TestOpen(t *testing.T) {
	dir := writeDataset(t, map[string][]string{
		"i2": {`{"event_type":"message","message_id":1}`},
		"i1": {`{"event_type":"command"}`},
		"i3": {},
	}, nil)
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	m := s.Manifest()
	if len(m.InstanceIDs) != 3 {
		t.Fatalf("InstanceIDs = %v", m.InstanceIDs)
	}
	// Lexical file order defines the manifest order.
	want := []string{"i1", "i2", "i3"}
	for i, id := range want {
		if m.InstanceIDs[i] != id {
			t.Errorf("InstanceIDs[%d] = %q, want %q", i, m.InstanceIDs[i], id)
		}
	}
	if m.Checksum != dataset.Fingerprint(want) {
		t.Errorf("Checksum = %q, want fingerprint of id list", m.Checksum)
	}
}

func TestOpenMissingInstancesDir(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open() on a directory without instances/ should fail")
	}
}

func TestInstance(t *testing.T) {
	dir := writeDataset(t, map[string][]string{
		"i1": {
			`{"event_type":"message","message_id":1}`,
			`{"event_type":"command","caster":null}`,
		},
	}, nil)
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("returns raw events", func(t *testing.T) {
		resp, err := s.Instance("i1")
		if err != nil {
			t.Fatalf("Instance(i1) error = %v", err)
		}
		if resp.InstanceID != "i1" {
			t.Errorf("InstanceID = %q", resp.InstanceID)
		}
		if len(resp.Events) != 2 {
			t.Fatalf("len(Events) = %d, want 2", len(resp.Events))
		}
		if string(resp.Events[0]) != `{"event_type":"message","message_id":1}` {
			t.Errorf("Events[0] = %s", resp.Events[0])
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Instance("i9")
		var apiErr *apierrors.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Instance(i9) error = %v, want *APIError", err)
		}
		if apiErr.Code() != apierrors.ErrInstanceNotFound {
			t.Errorf("Code() = %q", apiErr.Code())
		}
	})

	t.Run("path traversal id is just not found", func(t *testing.T) {
		_, err := s.Instance("../config")
		var apiErr *apierrors.APIError
		if !errors.As(err, &apiErr) || apiErr.Code() != apierrors.ErrInstanceNotFound {
			t.Fatalf("Instance(../config) error = %v, want instance-not-found", err)
		}
	})
}

func TestWriteCSV(t *testing.T) {
	dir := writeDataset(t, map[string][]string{
		"i1": {`{}`},
		"i2": {`{}`},
		"i3": {`{}`},
	}, []models.HeuristicRecord{
		{InstanceID: "i1", Scores: map[string]float64{"b_score": 2, "a_score": 1}},
		{InstanceID: "i3", Scores: map[string]float64{"a_score": 0.25}},
	})
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	// Header: instance_id then sorted score columns.
	wantHeader := []string{"instance_id", "a_score", "b_score"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	// Rows in manifest order; missing scores are empty cells.
	if rows[1][0] != "i1" || rows[1][1] != "1" || rows[1][2] != "2" {
		t.Errorf("row i1 = %v", rows[1])
	}
	if rows[2][0] != "i2" || rows[2][1] != "" || rows[2][2] != "" {
		t.Errorf("row i2 = %v, want empty cells for unscored instance", rows[2])
	}
	if rows[3][0] != "i3" || rows[3][1] != "0.25" || rows[3][2] != "" {
		t.Errorf("row i3 = %v", rows[3])
	}
}

func TestReload(t *testing.T) {
	dir := writeDataset(t, map[string][]string{"i1": {`{}`}}, nil)
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	before := s.Manifest()

	if err := os.WriteFile(filepath.Join(dir, "instances", "i2.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	after := s.Manifest()
	if len(after.InstanceIDs) != 2 {
		t.Fatalf("InstanceIDs = %v after reload", after.InstanceIDs)
	}
	if after.Checksum == before.Checksum {
		t.Error("checksum unchanged after the id list changed")
	}
	if _, err := s.Instance("i2"); err != nil {
		t.Errorf("Instance(i2) error = %v after reload", err)
	}
}
