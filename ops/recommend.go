package ops

import (
	"fmt"
	"sort"

	"cryobank/contract"
	"cryobank/inventory"
)

// RecommendRequest asks for free slots for new samples. Box 0 means any
// box; Strategy is "consecutive" (default) or "same_row".
type RecommendRequest struct {
	Count    int    `json:"count"`
	Box      int    `json:"box"`
	Strategy string `json:"strategy"`
}

// RecommendPositions picks empty slots for Count new tubes. It never
// returns an active position, prefers a consecutive run inside one row,
// prefers topping up a partially-used row over opening a fresh one, and
// breaks ties by lowest box then lowest position. When no single box can
// host the whole request the recommendation splits across boxes.
func (s *Service) RecommendPositions(req RecommendRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if req.Count < 1 {
		return contract.Failure(contract.CodeInvalidCount,
			fmt.Sprintf("count must be at least 1, got %d", req.Count))
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = "consecutive"
	}
	if strategy != "consecutive" && strategy != "same_row" {
		return contract.Failure(contract.CodeInvalidToolInput,
			fmt.Sprintf("unknown strategy %q", req.Strategy)).
			WithHint(`strategy must be "consecutive" or "same_row"`)
	}

	boxes := make([]int, 0, doc.Meta.BoxCount)
	if req.Box != 0 {
		if req.Box < 1 || req.Box > doc.Meta.BoxCount {
			return contract.Failure(contract.CodeInvalidBox,
				fmt.Sprintf("box %d out of range 1..%d", req.Box, doc.Meta.BoxCount))
		}
		boxes = append(boxes, req.Box)
	} else {
		for b := 1; b <= doc.Meta.BoxCount; b++ {
			boxes = append(boxes, b)
		}
	}

	cols := doc.Meta.Layout.Cols
	if cols <= 0 {
		cols = 9
	}
	// Tiers across all candidate boxes: a consecutive run in a higher box
	// beats scattered slots in a lower one. Within a tier the lowest box
	// (then lowest position) wins.
	for tier := tierPartialRow; tier <= tierScattered; tier++ {
		if tier == tierCrossRow && strategy != "consecutive" {
			continue
		}
		for _, box := range boxes {
			if picked := pickInBox(doc, box, req.Count, cols, tier); picked != nil {
				return contract.Success(map[string]any{
					"box": box, "positions": picked,
					"strategy": strategy, "consecutive": tier != tierScattered,
				})
			}
		}
	}

	// No single box fits the request: split greedily, lowest box first.
	remaining := req.Count
	var groups []map[string]any
	for _, box := range boxes {
		if remaining == 0 {
			break
		}
		empty := inventory.EmptyPositions(doc, box)
		if len(empty) == 0 {
			continue
		}
		take := remaining
		if take > len(empty) {
			take = len(empty)
		}
		groups = append(groups, map[string]any{"box": box, "positions": empty[:take]})
		remaining -= take
	}
	if remaining > 0 {
		return contract.Failure(contract.CodeValidationFailed,
			fmt.Sprintf("not enough empty slots: %d requested, %d short", req.Count, remaining)).
			WithHint("free up slots or add boxes with manage_boxes")
	}
	return contract.Success(map[string]any{
		"split": groups, "strategy": strategy, "consecutive": false,
	})
}

// Placement tiers, strongest first.
const (
	tierPartialRow = iota // consecutive run inside a partially-used row
	tierEmptyRow          // consecutive run inside a fully empty row
	tierCrossRow          // consecutive run crossing row boundaries
	tierScattered         // lowest empty slots, no adjacency
)

// pickInBox tries to place the whole request inside one box at the given
// tier, returning nil when that tier has no fit there.
func pickInBox(doc *inventory.Document, box, count, cols, tier int) []int {
	empty := inventory.EmptyPositions(doc, box)
	if len(empty) < count {
		return nil
	}
	emptySet := make(map[int]struct{}, len(empty))
	for _, p := range empty {
		emptySet[p] = struct{}{}
	}
	slots := doc.Meta.Layout.Slots()

	switch tier {
	case tierPartialRow, tierEmptyRow:
		for rowStart := 1; rowStart <= slots; rowStart += cols {
			rowEnd := rowStart + cols - 1
			if rowEnd > slots {
				rowEnd = slots
			}
			rowEmpty := 0
			for p := rowStart; p <= rowEnd; p++ {
				if _, ok := emptySet[p]; ok {
					rowEmpty++
				}
			}
			partial := rowEmpty > 0 && rowEmpty < rowEnd-rowStart+1
			if (tier == tierPartialRow) != partial {
				continue
			}
			run := 0
			for p := rowStart; p <= rowEnd; p++ {
				if _, ok := emptySet[p]; ok {
					run++
					if run >= count {
						return runPositions(p-count+1, count)
					}
				} else {
					run = 0
				}
			}
		}
	case tierCrossRow:
		run := 0
		for p := 1; p <= slots; p++ {
			if _, ok := emptySet[p]; ok {
				run++
				if run >= count {
					return runPositions(p-count+1, count)
				}
			} else {
				run = 0
			}
		}
	case tierScattered:
		return empty[:count]
	}
	return nil
}

func runPositions(start, count int) []int {
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// GenerateStats summarizes occupancy: per-box and overall counters plus
// per-cell-line tube counts.
func (s *Service) GenerateStats() contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	stats := inventory.CollectStats(doc)
	byCellLine := make(map[string]int)
	for _, rec := range doc.Records {
		if n := len(inventory.ActivePositions(rec)); n > 0 {
			byCellLine[rec.CellLine] += n
		}
	}
	occupancy := inventory.Occupancy(doc.Records)
	perBox := make(map[string]any, len(occupancy))
	boxes := make([]int, 0, len(occupancy))
	for b := range occupancy {
		boxes = append(boxes, b)
	}
	sort.Ints(boxes)
	for _, b := range boxes {
		perBox[fmt.Sprintf("%d", b)] = occupancy[b]
	}
	return contract.Success(map[string]any{
		"stats":        stats,
		"by_cell_line": byCellLine,
		"occupancy":    perBox,
	})
}
