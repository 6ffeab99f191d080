package inventory

import (
	"reflect"
	"testing"
)

func TestActivePositions(t *testing.T) {
	t.Parallel()

	rec := testRecord(1, 1, 4, 5, 6)
	rec.Events = []Event{
		{Date: "2025-02-01", Action: ActionTakeout, Positions: []int{5}},
		{Date: "2025-02-02", Action: ActionThaw, Positions: []int{4}},
	}
	got := ActivePositions(rec)
	if !reflect.DeepEqual(got, []int{4, 6}) {
		t.Fatalf("active positions = %v, want [4 6] (thaw must not consume)", got)
	}
}

func TestCollectStats(t *testing.T) {
	t.Parallel()

	doc := testDoc(testRecord(1, 1, 1, 2), testRecord(2, 2, 10))
	stats := CollectStats(doc)
	if stats.TotalSlots != 5*81 {
		t.Fatalf("total slots = %d, want %d", stats.TotalSlots, 5*81)
	}
	if stats.TotalOccupied != 3 {
		t.Fatalf("total occupied = %d, want 3", stats.TotalOccupied)
	}
	if stats.Boxes[1].Occupied != 2 || stats.Boxes[1].Empty != 79 {
		t.Fatalf("unexpected box 1 stats: %+v", stats.Boxes[1])
	}
	if stats.RecordCount != 2 {
		t.Fatalf("record count = %d, want 2", stats.RecordCount)
	}
}

func TestEmptyPositions(t *testing.T) {
	t.Parallel()

	doc := testDoc(testRecord(1, 1, 1, 2, 3))
	empty := EmptyPositions(doc, 1)
	if len(empty) != 78 {
		t.Fatalf("expected 78 empty slots, got %d", len(empty))
	}
	if empty[0] != 4 {
		t.Fatalf("first empty slot = %d, want 4", empty[0])
	}
}
