package ops

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/store"
)

func testService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := store.Config{
		Path:           filepath.Join(dir, "inventory.yaml"),
		BackupDir:      filepath.Join(dir, "backups"),
		BackupKeep:     20,
		AuditPath:      filepath.Join(dir, "audit.jsonl"),
		TotalEmptyWarn: 0,
		BoxEmptyWarn:   0,
		SizeWarnMB:     0,
	}
	st := store.New(cfg, zerolog.Nop())
	if err := st.Initialize(inventory.Meta{BoxCount: 3, Layout: inventory.BoxLayout{Rows: 9, Cols: 9}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return New(st, zerolog.Nop())
}

func testActor() contract.ActorContext {
	return contract.NewActorContext("human", "cli", "session-test", "trace-test")
}

func mustAdd(t *testing.T, s *Service, req AddEntryRequest) int {
	t.Helper()
	res := s.AddEntry(context.Background(), testActor(), req)
	if !res.OK {
		t.Fatalf("add entry failed: %s: %s", res.ErrorCode, res.Message)
	}
	id, ok := res.Result["id"].(int)
	if !ok {
		t.Fatalf("missing id in result: %+v", res.Result)
	}
	return id
}

func TestFailureMapsPipelineSentinels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: record 1 conflicts", contract.ErrIntegrity), contract.CodeIntegrityFailed},
		{fmt.Errorf("%w: cell_line is required", contract.ErrValidation), contract.CodeValidationFailed},
		{fmt.Errorf("%w: write backup", contract.ErrBackup), contract.CodeBackupFailed},
		{fmt.Errorf("%w: replace document", contract.ErrPersistence), contract.CodeWriteFailed},
		{fmt.Errorf("%w: position 5 taken", contract.ErrConflict), contract.CodePositionConflict},
		{fmt.Errorf("%w: record 9", contract.ErrNotFound), contract.CodeNotFound},
	}
	for _, tc := range cases {
		if got := failure(tc.err); got.ErrorCode != tc.code {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.code, got.ErrorCode)
		}
	}
}

func TestAddEntryAssignsIDAndPersists(t *testing.T) {
	t.Parallel()

	s := testService(t)
	id := mustAdd(t, s, AddEntryRequest{
		CellLine: "HEK293T", Box: 1, Positions: []int{3, 4}, FrozenAt: "2025-01-15",
	})
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}

	res := s.GetRawEntries([]int{id})
	if !res.OK {
		t.Fatalf("get raw entries: %s", res.Message)
	}
	if res.Result["count"] != 1 {
		t.Fatalf("expected one record, got %+v", res.Result)
	}
}

func TestAddEntryRejectsOccupiedPosition(t *testing.T) {
	t.Parallel()

	s := testService(t)
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{5}, FrozenAt: "2025-01-15"})

	res := s.AddEntry(context.Background(), testActor(), AddEntryRequest{
		CellLine: "HEK293T", Box: 1, Positions: []int{5}, FrozenAt: "2025-02-01",
	})
	if res.OK || res.ErrorCode != contract.CodePositionConflict {
		t.Fatalf("expected position_conflict, got %+v", res)
	}
}

func TestAddEntryAllowsReusingConsumedPosition(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{5}, FrozenAt: "2025-01-15"})

	out := s.RecordEvent(ctx, testActor(), EventRequest{
		RecordID: id, Action: "取出", Date: "2025-02-01", Positions: []int{5},
	})
	if !out.OK {
		t.Fatalf("takeout failed: %s", out.Message)
	}

	res := s.AddEntry(ctx, testActor(), AddEntryRequest{
		CellLine: "HEK293T", Box: 1, Positions: []int{5}, FrozenAt: "2025-02-02",
	})
	if !res.OK {
		t.Fatalf("consumed slot should be reusable: %s: %s", res.ErrorCode, res.Message)
	}
}

func TestEditEntryMetadataOnly(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})

	note := "passage 12"
	res := s.EditEntry(ctx, testActor(), EditEntryRequest{ID: id, Note: &note})
	if !res.OK {
		t.Fatalf("edit: %s", res.Message)
	}

	raw := s.GetRawEntries([]int{id})
	records := raw.Result["records"].([]inventory.Record)
	if records[0].Note != "passage 12" {
		t.Fatalf("note not persisted: %+v", records[0])
	}

	empty := ""
	res = s.EditEntry(ctx, testActor(), EditEntryRequest{ID: id, CellLine: &empty})
	if res.OK || res.ErrorCode != contract.CodeValidationFailed {
		t.Fatalf("expected emptied cell_line to be rejected, got %+v", res)
	}
}

func TestRecordEventMoveTransfersActivity(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{5}, FrozenAt: "2025-01-15"})

	res := s.RecordEvent(ctx, testActor(), EventRequest{
		RecordID: id, Action: "move", Date: "2025-02-01",
		Positions: []int{5}, ToBox: 2, ToPosition: 7,
	})
	if !res.OK {
		t.Fatalf("move: %s: %s", res.ErrorCode, res.Message)
	}

	raw := s.GetRawEntries([]int{id})
	rec := raw.Result["records"].([]inventory.Record)[0]
	if rec.Box != 2 || !reflect.DeepEqual(inventory.ActivePositions(rec), []int{7}) {
		t.Fatalf("activity did not transfer: box=%d active=%v", rec.Box, inventory.ActivePositions(rec))
	}

	// The vacated slot is free again.
	add := s.AddEntry(ctx, testActor(), AddEntryRequest{
		CellLine: "HEK293T", Box: 1, Positions: []int{5}, FrozenAt: "2025-02-02",
	})
	if !add.OK {
		t.Fatalf("vacated slot should be free: %s", add.Message)
	}
}

func TestRecordEventRejectsInactivePosition(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{5}, FrozenAt: "2025-01-15"})

	res := s.RecordEvent(ctx, testActor(), EventRequest{
		RecordID: id, Action: "discard", Date: "2025-02-01", Positions: []int{6},
	})
	if res.OK || res.ErrorCode != contract.CodeInvalidPosition {
		t.Fatalf("expected invalid_position, got %+v", res)
	}
}

func TestBatchEventsAtomicOnInvalidEntry(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id1 := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})
	id2 := mustAdd(t, s, AddEntryRequest{CellLine: "HEK293T", Box: 1, Positions: []int{2}, FrozenAt: "2025-01-15"})

	res := s.BatchEvents(ctx, testActor(), []EventRequest{
		{RecordID: id1, Action: "takeout", Date: "2025-02-01", Positions: []int{1}},
		{RecordID: 999, Action: "takeout", Date: "2025-02-01"},
	})
	if res.OK || res.ErrorCode != contract.CodeBatchInvalid {
		t.Fatalf("expected batch_invalid, got %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one aggregated entry failure, got %v", res.Errors)
	}

	// Entry 1 was valid but must not have been applied.
	raw := s.GetRawEntries([]int{id1, id2})
	for _, rec := range raw.Result["records"].([]inventory.Record) {
		if len(rec.Events) != 0 {
			t.Fatalf("batch partially applied: record %d has events %+v", rec.ID, rec.Events)
		}
	}
}

func TestBatchEventsRejectsInternalDuplicateTargets(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})

	res := s.BatchEvents(ctx, testActor(), []EventRequest{
		{RecordID: id, Action: "thaw", Date: "2025-02-01", Positions: []int{1}},
		{RecordID: id, Action: "takeout", Date: "2025-02-01", Positions: []int{1}},
	})
	if res.OK || res.ErrorCode != contract.CodeBatchInvalid {
		t.Fatalf("expected batch_invalid for duplicate targets, got %+v", res)
	}
}

func TestBatchEventsAppliesAllWhenValid(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id1 := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})
	id2 := mustAdd(t, s, AddEntryRequest{CellLine: "HEK293T", Box: 1, Positions: []int{2}, FrozenAt: "2025-01-15"})

	res := s.BatchEvents(ctx, testActor(), []EventRequest{
		{RecordID: id1, Action: "takeout", Date: "2025-02-01", Positions: []int{1}},
		{RecordID: id2, Action: "复苏", Date: "2025-02-01", Positions: []int{2}},
	})
	if !res.OK {
		t.Fatalf("batch: %s: %s", res.ErrorCode, res.Message)
	}
	if res.Result["entry_count"] != 2 {
		t.Fatalf("expected 2 applied entries, got %+v", res.Result)
	}
}

func TestAdjustBoxesProtectsOccupiedBoxes(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 3, Positions: []int{1}, FrozenAt: "2025-01-15"})

	res := s.AdjustBoxes(ctx, testActor(), 2)
	if res.OK || res.ErrorCode != contract.CodeBoxOccupied {
		t.Fatalf("expected box_occupied, got %+v", res)
	}

	res = s.AdjustBoxes(ctx, testActor(), 5)
	if !res.OK || res.Result["box_count"] != 5 {
		t.Fatalf("grow failed: %+v", res)
	}
}

func TestRollbackMapsMissingBackup(t *testing.T) {
	t.Parallel()

	s := testService(t)
	res := s.Rollback(context.Background(), testActor(), "latest")
	if res.OK || res.ErrorCode != contract.CodeNoBackup {
		t.Fatalf("expected no_backup, got %+v", res)
	}
}

func TestSearchRecordsModes(t *testing.T) {
	t.Parallel()

	s := testService(t)
	mustAdd(t, s, AddEntryRequest{CellLine: "HEK293T", ShortName: "293T-p5", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 2, Positions: []int{1}, FrozenAt: "2025-01-15", Note: "low passage stock"})

	cases := []struct {
		name string
		req  SearchRequest
		want int
	}{
		{"fuzzy substring", SearchRequest{Query: "hek"}, 1},
		{"exact full field", SearchRequest{Query: "HeLa", Mode: "exact"}, 1},
		{"exact no substring", SearchRequest{Query: "He", Mode: "exact"}, 0},
		{"keywords all terms", SearchRequest{Query: "low stock", Mode: "keywords"}, 1},
		{"keywords missing term", SearchRequest{Query: "low plasma", Mode: "keywords"}, 0},
		{"box filter", SearchRequest{Box: 2}, 1},
		{"position filter", SearchRequest{Box: 1, Position: 1}, 1},
	}
	for _, tc := range cases {
		res := s.SearchRecords(tc.req)
		if !res.OK {
			t.Fatalf("%s: %s", tc.name, res.Message)
		}
		if res.Result["count"] != tc.want {
			t.Fatalf("%s: expected %d matches, got %+v", tc.name, tc.want, res.Result)
		}
	}

	res := s.SearchRecords(SearchRequest{Mode: "soundex"})
	if res.OK || res.ErrorCode != contract.CodeInvalidToolInput {
		t.Fatalf("expected invalid_tool_input for bad mode, got %+v", res)
	}
}

func TestSearchRecordsActiveOnly(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1}, FrozenAt: "2025-01-15"})
	if out := s.RecordEvent(ctx, testActor(), EventRequest{RecordID: id, Action: "discard", Date: "2025-02-01"}); !out.OK {
		t.Fatalf("discard: %s", out.Message)
	}

	res := s.SearchRecords(SearchRequest{ActiveOnly: true})
	if !res.OK || res.Result["count"] != 0 {
		t.Fatalf("discarded record should not count as active: %+v", res.Result)
	}
	res = s.SearchRecords(SearchRequest{})
	if res.Result["count"] != 1 {
		t.Fatalf("history should still be searchable: %+v", res.Result)
	}
}

func TestQueryEventsFiltersAndSummary(t *testing.T) {
	t.Parallel()

	s := testService(t)
	ctx := context.Background()
	id := mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1, 2, 3}, FrozenAt: "2025-01-01"})
	for _, ev := range []EventRequest{
		{RecordID: id, Action: "thaw", Date: "2025-02-01", Positions: []int{1}},
		{RecordID: id, Action: "takeout", Date: "2025-03-01", Positions: []int{2}},
		{RecordID: id, Action: "takeout", Date: "2025-04-01", Positions: []int{3}},
	} {
		if out := s.RecordEvent(ctx, testActor(), ev); !out.OK {
			t.Fatalf("seed event: %s", out.Message)
		}
	}

	res := s.QueryEvents(EventQuery{From: "2025-02-15", To: "2025-03-15"})
	if !res.OK || res.Result["event_count"] != 1 {
		t.Fatalf("date range filter: %+v", res.Result)
	}

	res = s.QueryEvents(EventQuery{Action: "取出"})
	if !res.OK || res.Result["event_count"] != 2 {
		t.Fatalf("action alias filter: %+v", res.Result)
	}

	res = s.QueryEvents(EventQuery{Summary: true})
	byAction := res.Result["by_action"].(map[string]int)
	if byAction["takeout"] != 2 || byAction["thaw"] != 1 {
		t.Fatalf("summary counts: %+v", byAction)
	}

	res = s.QueryEvents(EventQuery{From: "02/15/2025"})
	if res.OK || res.ErrorCode != contract.CodeInvalidDate {
		t.Fatalf("expected invalid_date, got %+v", res)
	}
}

func TestGenerateStats(t *testing.T) {
	t.Parallel()

	s := testService(t)
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 1, Positions: []int{1, 2}, FrozenAt: "2025-01-15"})
	mustAdd(t, s, AddEntryRequest{CellLine: "HeLa", Box: 2, Positions: []int{1}, FrozenAt: "2025-01-15"})

	res := s.GenerateStats()
	if !res.OK {
		t.Fatalf("stats: %s", res.Message)
	}
	stats := res.Result["stats"].(inventory.Stats)
	if stats.TotalOccupied != 3 || stats.TotalSlots != 3*81 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if res.Result["by_cell_line"].(map[string]int)["HeLa"] != 3 {
		t.Fatalf("by_cell_line: %+v", res.Result)
	}
}
