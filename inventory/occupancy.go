package inventory

import "sort"

// ActivePositions returns the positions of a record still holding a tube:
// the declared positions minus those consumed by a terminal event.
// Move events rewrite Positions at apply time, so they need no replay here.
func ActivePositions(rec Record) []int {
	consumed := make(map[int]struct{})
	for _, ev := range rec.Events {
		if !ev.Action.Terminal() {
			continue
		}
		for _, p := range ev.Positions {
			consumed[p] = struct{}{}
		}
	}
	var active []int
	for _, p := range rec.Positions {
		if _, gone := consumed[p]; !gone {
			active = append(active, p)
		}
	}
	return active
}

// Occupancy maps box number to the sorted set of active positions in it.
func Occupancy(records []Record) map[int][]int {
	occupied := make(map[int][]int)
	for _, rec := range records {
		if rec.Box <= 0 {
			continue
		}
		occupied[rec.Box] = append(occupied[rec.Box], ActivePositions(rec)...)
	}
	for box, positions := range occupied {
		sort.Ints(positions)
		occupied[box] = positions
	}
	return occupied
}

// BoxStats is the per-box slice of a stats snapshot.
type BoxStats struct {
	Occupied int     `json:"occupied"`
	Empty    int     `json:"empty"`
	Total    int     `json:"total"`
	Rate     float64 `json:"rate"`
}

// Stats is a compact occupancy summary used by audit events and warnings.
type Stats struct {
	RecordCount   int              `json:"record_count"`
	TotalSlots    int              `json:"total_slots"`
	TotalOccupied int              `json:"total_occupied"`
	TotalEmpty    int              `json:"total_empty"`
	Boxes         map[int]BoxStats `json:"boxes"`
}

// CollectStats computes occupancy counters for the whole document.
func CollectStats(doc *Document) Stats {
	if doc == nil {
		return Stats{Boxes: map[int]BoxStats{}}
	}
	perBox := doc.Meta.Layout.Slots()
	boxCount := doc.Meta.BoxCount
	if boxCount <= 0 {
		boxCount = 1
	}
	occupancy := Occupancy(doc.Records)

	stats := Stats{
		RecordCount: len(doc.Records),
		TotalSlots:  perBox * boxCount,
		Boxes:       make(map[int]BoxStats, boxCount),
	}
	for box := 1; box <= boxCount; box++ {
		occupied := len(occupancy[box])
		empty := perBox - occupied
		if empty < 0 {
			empty = 0
		}
		rate := 0.0
		if perBox > 0 {
			rate = float64(occupied) / float64(perBox) * 100
		}
		stats.Boxes[box] = BoxStats{Occupied: occupied, Empty: empty, Total: perBox, Rate: rate}
		stats.TotalOccupied += occupied
	}
	stats.TotalEmpty = stats.TotalSlots - stats.TotalOccupied
	if stats.TotalEmpty < 0 {
		stats.TotalEmpty = 0
	}
	return stats
}

// EmptyPositions returns the free slots of one box, sorted ascending.
func EmptyPositions(doc *Document, box int) []int {
	occupied := make(map[int]struct{})
	for _, p := range Occupancy(doc.Records)[box] {
		occupied[p] = struct{}{}
	}
	slots := doc.Meta.Layout.Slots()
	empty := make([]int, 0, slots-len(occupied))
	for p := 1; p <= slots; p++ {
		if _, used := occupied[p]; !used {
			empty = append(empty, p)
		}
	}
	return empty
}
