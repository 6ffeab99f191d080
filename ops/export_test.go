package ops

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExportCSVWritesSortedSnapshot(t *testing.T) {
	t.Parallel()

	s := testService(t)
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 2, Positions: []int{1}, FrozenAt: "2025-02-01"})
	mustAdd(t, s, AddEntryRequest{CellLine: "HEK293T", Box: 1, Positions: []int{30, 31, 32}, FrozenAt: "2025-01-15", Note: "P4"})
	mustAdd(t, s, AddEntryRequest{CellLine: "K562", Box: 1, Positions: []int{5}, FrozenAt: "2025-03-10"})

	out := filepath.Join(t.TempDir(), "snapshot.csv")
	res := s.ExportCSV(out)
	if !res.OK {
		t.Fatalf("export: %s: %s", res.ErrorCode, res.Message)
	}
	if res.Result["count"].(int) != 3 {
		t.Fatalf("expected 3 exported rows, got %v", res.Result["count"])
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], exportCoreColumns) {
		t.Fatalf("unexpected header %v", rows[0])
	}

	// Box 1 position 5, then box 1 positions 30-32, then box 2.
	if rows[1][1] != "K562" || rows[2][1] != "HEK293T" || rows[3][1] != "HeLa" {
		t.Fatalf("rows not sorted by box then position: %v", rows)
	}
	if rows[2][4] != "30,31,32" {
		t.Fatalf("multi-position record must export the full set, got %q", rows[2][4])
	}
	if rows[2][6] != "P4" {
		t.Fatalf("note column lost, got %q", rows[2][6])
	}
}

func TestExportCSVRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	s := testService(t)
	if res := s.ExportCSV("  "); res.OK || res.ErrorCode != "validation_failed" {
		t.Fatalf("expected validation_failed for empty path, got %+v", res)
	}
}
