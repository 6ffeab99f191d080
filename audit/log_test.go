package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLogAppendAndRead(t *testing.T) {
	t.Parallel()

	log := NewLog(filepath.Join(t.TempDir(), "audit.jsonl"))
	ctx := context.Background()

	events := []Event{
		{Timestamp: "2025-03-01T10:00:00", Action: "add_entry", Status: StatusSuccess},
		{Timestamp: "2025-03-01T11:00:00", Action: "record_event", Status: StatusFailed, Error: "position conflict"},
	}
	for _, ev := range events {
		if err := log.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := log.Read(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Action != "add_entry" || got[1].Status != StatusFailed {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLogReadSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := `{"timestamp":"2025-03-01T10:00:00","action":"add_entry","status":"success","changed_ids":{"added":[1],"removed":[],"updated":[]}}
not json at all
{"timestamp":"2025-03-01T11:00:00","action":"rollback","status":"success","changed_ids":{"added":[],"removed":[],"updated":[]}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := NewLog(path).Read(0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 parseable events, got %d", len(got))
	}
}

func TestLogReadLimitKeepsLatest(t *testing.T) {
	t.Parallel()

	log := NewLog(filepath.Join(t.TempDir(), "audit.jsonl"))
	ctx := context.Background()
	for _, stamp := range []string{"2025-03-01T10:00:00", "2025-03-01T11:00:00", "2025-03-01T12:00:00"} {
		if err := log.Append(ctx, Event{Timestamp: stamp, Action: "add_entry", Status: StatusSuccess}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := log.Read(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].Timestamp != "2025-03-01T12:00:00" {
		t.Fatalf("expected latest 2 events, got %+v", got)
	}
}

func TestLogReadMissingFile(t *testing.T) {
	t.Parallel()

	got, err := NewLog(filepath.Join(t.TempDir(), "missing.jsonl")).Read(0)
	if err != nil {
		t.Fatalf("missing log must not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}
