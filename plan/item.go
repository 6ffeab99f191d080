// Package plan holds write proposals the reasoning agent stages for human
// approval. Staged items carry enough to replay the exact operation later;
// nothing touches the document until an item is approved.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is one staged write proposal.
type Item struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"` // add_entry | edit_entry | takeout | thaw | discard | move | rollback
	RecordID   int            `json:"record_id,omitempty"`
	Box        int            `json:"box,omitempty"`
	Position   int            `json:"position,omitempty"`
	ToBox      int            `json:"to_box,omitempty"`
	ToPosition int            `json:"to_position,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Label      string         `json:"label"`
	Source     string         `json:"source"` // which surface staged it
	CreatedAt  time.Time      `json:"created_at"`
}

// NewItem assigns the identity fields; everything else comes from the caller.
func NewItem(action string) Item {
	return Item{
		ID:        uuid.NewString(),
		Action:    action,
		CreatedAt: time.Now(),
	}
}

// Key is the dedup identity: staging the same action against the same
// record and slot twice is one proposal, not two. The box is part of the
// slot, and for moves so is the destination.
func (it Item) Key() string {
	if it.Action == "move" {
		return fmt.Sprintf("%s/%d/%d:%d/%d:%d", it.Action, it.RecordID, it.Box, it.Position, it.ToBox, it.ToPosition)
	}
	return fmt.Sprintf("%s/%d/%d:%d", it.Action, it.RecordID, it.Box, it.Position)
}

// Describe renders a short human label for approval surfaces.
func (it Item) Describe() string {
	if it.Label != "" {
		return it.Label
	}
	switch it.Action {
	case "add_entry":
		return fmt.Sprintf("add entry in box %d position %d", it.Box, it.Position)
	case "move":
		return fmt.Sprintf("move record %d from box %d position %d to box %d position %d",
			it.RecordID, it.Box, it.Position, it.ToBox, it.ToPosition)
	case "rollback":
		return "roll back to a previous backup"
	default:
		return fmt.Sprintf("%s record %d position %d", it.Action, it.RecordID, it.Position)
	}
}
