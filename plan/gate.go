package plan

import (
	"fmt"

	"cryobank/inventory"
)

// Gate rejects staged proposals that could never apply: structural junk,
// conflicts with other staged items, and conflicts with the live document.
// A blocked item never enters the queue.
type Gate struct{}

var validItemActions = map[string]bool{
	"add_entry": true, "edit_entry": true, "rollback": true,
	"takeout": true, "thaw": true, "discard": true, "move": true,
}

// Validate checks one incoming item against the already-staged items and a
// snapshot of the live document. It returns every reason at once.
func (Gate) Validate(existing []Item, incoming Item, doc *inventory.Document) []string {
	var reasons []string
	if !validItemActions[incoming.Action] {
		return []string{fmt.Sprintf("unknown staged action %q", incoming.Action)}
	}
	if incoming.Action == "rollback" || incoming.Action == "edit_entry" {
		// Neither claims nor frees slots; only dedup applies, in Store.Add.
		return nil
	}

	slots := doc.Meta.Layout.Slots()
	checkSlot := func(what string, box, pos int) {
		if box < 1 || box > doc.Meta.BoxCount {
			reasons = append(reasons, fmt.Sprintf("%s box %d out of range 1..%d", what, box, doc.Meta.BoxCount))
		}
		if pos < 1 || pos > slots {
			reasons = append(reasons, fmt.Sprintf("%s position %d out of range 1..%d", what, pos, slots))
		}
	}

	projected := projectOccupancy(doc, existing)

	switch incoming.Action {
	case "add_entry":
		for _, pos := range claimedPositions(incoming) {
			checkSlot("target", incoming.Box, pos)
			if len(reasons) > 0 {
				continue
			}
			if projected.occupied(incoming.Box, pos) {
				reasons = append(reasons, fmt.Sprintf(
					"box %d position %d is occupied (live document or another staged item)",
					incoming.Box, pos))
			}
		}
	case "takeout", "thaw", "discard", "move":
		rec := inventory.FindRecord(doc.Records, incoming.RecordID)
		if rec == nil {
			return []string{fmt.Sprintf("record %d not found", incoming.RecordID)}
		}
		if !containsInt(inventory.ActivePositions(*rec), incoming.Position) {
			reasons = append(reasons, fmt.Sprintf(
				"position %d of record %d is not active", incoming.Position, incoming.RecordID))
		}
		if projected.consumed(incoming.RecordID, incoming.Position) {
			reasons = append(reasons, fmt.Sprintf(
				"position %d of record %d is already consumed by another staged item",
				incoming.Position, incoming.RecordID))
		}
		if incoming.Action == "move" {
			checkSlot("destination", incoming.ToBox, incoming.ToPosition)
			if len(reasons) == 0 && projected.occupied(incoming.ToBox, incoming.ToPosition) {
				reasons = append(reasons, fmt.Sprintf(
					"destination box %d position %d is occupied (live document or another staged item)",
					incoming.ToBox, incoming.ToPosition))
			}
		}
	}
	return reasons
}

// projection tracks slot ownership after replaying the staged queue on top
// of the live document.
type projection struct {
	slots   map[[2]int]bool // box/position -> holds a tube
	claimed map[string]bool // record/position consumed by a staged item
}

func projectOccupancy(doc *inventory.Document, staged []Item) projection {
	p := projection{slots: make(map[[2]int]bool), claimed: make(map[string]bool)}
	recordBox := make(map[int]int, len(doc.Records))
	for _, rec := range doc.Records {
		recordBox[rec.ID] = rec.Box
		for _, pos := range inventory.ActivePositions(rec) {
			p.slots[[2]int{rec.Box, pos}] = true
		}
	}
	for _, it := range staged {
		switch it.Action {
		case "add_entry":
			for _, pos := range claimedPositions(it) {
				p.slots[[2]int{it.Box, pos}] = true
			}
		case "takeout", "discard":
			box := it.Box
			if box == 0 {
				box = recordBox[it.RecordID]
			}
			delete(p.slots, [2]int{box, it.Position})
			p.claimed[fmt.Sprintf("%d/%d", it.RecordID, it.Position)] = true
		case "thaw":
			p.claimed[fmt.Sprintf("%d/%d", it.RecordID, it.Position)] = true
		case "move":
			box := it.Box
			if box == 0 {
				box = recordBox[it.RecordID]
			}
			delete(p.slots, [2]int{box, it.Position})
			p.slots[[2]int{it.ToBox, it.ToPosition}] = true
			p.claimed[fmt.Sprintf("%d/%d", it.RecordID, it.Position)] = true
		}
	}
	return p
}

func (p projection) occupied(box, pos int) bool {
	return p.slots[[2]int{box, pos}]
}

func (p projection) consumed(recordID, pos int) bool {
	return p.claimed[fmt.Sprintf("%d/%d", recordID, pos)]
}

// claimedPositions lists every slot an add_entry item claims: the payload's
// position list when present, the item's own position otherwise.
func claimedPositions(it Item) []int {
	if raw, ok := it.Payload["positions"]; ok {
		switch v := raw.(type) {
		case []int:
			if len(v) > 0 {
				return v
			}
		case []any:
			out := make([]int, 0, len(v))
			for _, item := range v {
				switch n := item.(type) {
				case int:
					out = append(out, n)
				case float64:
					out = append(out, int(n))
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return []int{it.Position}
}

func containsInt(list []int, want int) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
