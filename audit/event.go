// Package audit records one append-only event per mutation attempt.
// Events are written once by the write pipeline and never mutated.
package audit

import (
	"cryobank/inventory"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ChangedIDs lists the record ids a mutation added, removed or updated.
type ChangedIDs struct {
	Added   []int `json:"added"`
	Removed []int `json:"removed"`
	Updated []int `json:"updated"`
}

// Delta summarizes how occupancy counters moved across one write.
type Delta struct {
	RecordCount   int `json:"record_count"`
	TotalOccupied int `json:"total_occupied"`
	TotalEmpty    int `json:"total_empty"`
}

// Event is one audit record. Failed attempts carry Status=failed plus Error;
// Before/After are occupancy summaries, not full document copies.
type Event struct {
	Timestamp  string           `json:"timestamp"`
	Action     string           `json:"action"`
	ActorType  string           `json:"actor_type"`
	ActorID    string           `json:"actor_id"`
	Channel    string           `json:"channel"`
	SessionID  string           `json:"session_id"`
	TraceID    string           `json:"trace_id"`
	ToolName   string           `json:"tool_name,omitempty"`
	ToolInput  map[string]any   `json:"tool_input,omitempty"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	BackupPath string           `json:"backup_path,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Before     *inventory.Stats `json:"before,omitempty"`
	After      *inventory.Stats `json:"after,omitempty"`
	Delta      *Delta           `json:"delta,omitempty"`
	ChangedIDs ChangedIDs       `json:"changed_ids"`
	Details    map[string]any   `json:"details,omitempty"`
}

// DiffDelta derives the Delta between two occupancy summaries.
func DiffDelta(before, after *inventory.Stats) *Delta {
	if before == nil || after == nil {
		return nil
	}
	return &Delta{
		RecordCount:   after.RecordCount - before.RecordCount,
		TotalOccupied: after.TotalOccupied - before.TotalOccupied,
		TotalEmpty:    after.TotalEmpty - before.TotalEmpty,
	}
}
