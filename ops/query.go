package ops

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cryobank/contract"
	"cryobank/inventory"
)

// SearchRequest narrows the record set. Zero values mean "no filter".
type SearchRequest struct {
	Query       string `json:"query"`
	Mode        string `json:"mode"` // fuzzy | exact | keywords
	Box         int    `json:"box"`
	Position    int    `json:"position"`
	ID          int    `json:"id"`
	ActiveOnly  bool   `json:"active_only"`
	RecentDays  int    `json:"recent_days"`
	RecentCount int    `json:"recent_count"`
	Limit       int    `json:"limit"`
}

// SearchRecords filters the current snapshot. Text matching runs over the
// cell line, short name, note, and custom field values.
func (s *Service) SearchRecords(req SearchRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "fuzzy"
	}
	if mode != "fuzzy" && mode != "exact" && mode != "keywords" {
		return contract.Failure(contract.CodeInvalidToolInput,
			fmt.Sprintf("unknown search mode %q", req.Mode)).
			WithHint(`mode must be one of "fuzzy", "exact", "keywords"`)
	}

	var matched []inventory.Record
	for _, rec := range doc.Records {
		if req.ID != 0 && rec.ID != req.ID {
			continue
		}
		if req.Box != 0 && rec.Box != req.Box {
			continue
		}
		if req.Position != 0 && !containsInt(rec.Positions, req.Position) {
			continue
		}
		if req.ActiveOnly && len(inventory.ActivePositions(rec)) == 0 {
			continue
		}
		if req.Query != "" && !matchText(rec, req.Query, mode) {
			continue
		}
		matched = append(matched, rec)
	}

	if req.RecentDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -req.RecentDays)
		var recent []inventory.Record
		for _, rec := range matched {
			if last, ok := lastActivity(rec); ok && !last.Before(cutoff) {
				recent = append(recent, rec)
			}
		}
		matched = recent
	}
	if req.RecentCount > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			ti, _ := lastActivity(matched[i])
			tj, _ := lastActivity(matched[j])
			return ti.After(tj)
		})
		if len(matched) > req.RecentCount {
			matched = matched[:req.RecentCount]
		}
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}

	summaries := make([]map[string]any, 0, len(matched))
	for _, rec := range matched {
		summaries = append(summaries, recordSummary(rec))
	}
	return contract.Success(map[string]any{"records": summaries, "count": len(summaries)})
}

// ListEmptyPositions reports free slots, for one box or for every box.
func (s *Service) ListEmptyPositions(box int) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if box != 0 {
		if box < 1 || box > doc.Meta.BoxCount {
			return contract.Failure(contract.CodeInvalidBox,
				fmt.Sprintf("box %d out of range 1..%d", box, doc.Meta.BoxCount))
		}
		empty := inventory.EmptyPositions(doc, box)
		return contract.Success(map[string]any{
			"box": box, "empty_positions": empty, "empty_count": len(empty),
		})
	}
	perBox := make(map[string]any, doc.Meta.BoxCount)
	total := 0
	for b := 1; b <= doc.Meta.BoxCount; b++ {
		empty := inventory.EmptyPositions(doc, b)
		perBox[fmt.Sprintf("%d", b)] = empty
		total += len(empty)
	}
	return contract.Success(map[string]any{"boxes": perBox, "empty_count": total})
}

// EventQuery selects history entries across all records.
type EventQuery struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Action   string `json:"action"`
	RecordID int    `json:"record_id"`
	Summary  bool   `json:"summary"`
	Limit    int    `json:"limit"`
}

// QueryEvents walks every record's event history within an optional date
// range. Summary mode returns per-action counts instead of the entries.
func (s *Service) QueryEvents(req EventQuery) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	var from, to time.Time
	if req.From != "" {
		t, ok := inventory.ParseDate(req.From)
		if !ok {
			return contract.Failure(contract.CodeInvalidDate,
				fmt.Sprintf("from date %q is not %s", req.From, inventory.DateLayout))
		}
		from = t
	}
	if req.To != "" {
		t, ok := inventory.ParseDate(req.To)
		if !ok {
			return contract.Failure(contract.CodeInvalidDate,
				fmt.Sprintf("to date %q is not %s", req.To, inventory.DateLayout))
		}
		to = t
	}
	var action inventory.Action
	if req.Action != "" {
		action = inventory.NormalizeAction(req.Action)
		if !action.Valid() {
			return contract.Failure(contract.CodeInvalidAction,
				fmt.Sprintf("unknown action %q", req.Action))
		}
	}

	type entry struct {
		when time.Time
		row  map[string]any
	}
	var entries []entry
	counts := make(map[string]int)
	for _, rec := range doc.Records {
		if req.RecordID != 0 && rec.ID != req.RecordID {
			continue
		}
		for _, ev := range rec.Events {
			when, ok := inventory.ParseDate(ev.Date)
			if !ok {
				continue
			}
			if !from.IsZero() && when.Before(from) {
				continue
			}
			if !to.IsZero() && when.After(to) {
				continue
			}
			if action != "" && ev.Action != action {
				continue
			}
			counts[string(ev.Action)]++
			row := map[string]any{
				"record_id": rec.ID,
				"cell_line": rec.CellLine,
				"date":      ev.Date,
				"action":    string(ev.Action),
				"positions": ev.Positions,
			}
			if ev.Note != "" {
				row["note"] = ev.Note
			}
			if ev.Action == inventory.ActionMove {
				row["to_box"] = ev.ToBox
				row["to_position"] = ev.ToPosition
			}
			entries = append(entries, entry{when: when, row: row})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].when.After(entries[j].when) })

	if req.Summary {
		total := 0
		for _, n := range counts {
			total += n
		}
		return contract.Success(map[string]any{"by_action": counts, "event_count": total})
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, e.row)
	}
	return contract.Success(map[string]any{"events": rows, "event_count": len(rows)})
}

// GetRawEntries returns full records by id, reporting the ids it could not
// find without failing the ones it could.
func (s *Service) GetRawEntries(ids []int) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if len(ids) == 0 {
		return contract.Failure(contract.CodeInvalidToolInput, "ids must not be empty")
	}
	var found []inventory.Record
	var missing []int
	for _, id := range ids {
		if rec := inventory.FindRecord(doc.Records, id); rec != nil {
			found = append(found, rec.Clone())
		} else {
			missing = append(missing, id)
		}
	}
	if len(found) == 0 {
		return contract.Failure(contract.CodeNotFound,
			fmt.Sprintf("no records found for ids %v", ids))
	}
	res := contract.Success(map[string]any{"records": found, "count": len(found)})
	if len(missing) > 0 {
		res = res.WithWarnings(fmt.Sprintf("ids not found: %v", missing))
	}
	return res
}

func matchText(rec inventory.Record, query, mode string) bool {
	haystack := searchableText(rec)
	switch mode {
	case "exact":
		q := strings.ToLower(strings.TrimSpace(query))
		for _, field := range haystack {
			if field == q {
				return true
			}
		}
		return false
	case "keywords":
		joined := strings.Join(haystack, " ")
		for _, term := range strings.Fields(strings.ToLower(query)) {
			if !strings.Contains(joined, term) {
				return false
			}
		}
		return true
	default: // fuzzy
		q := strings.ToLower(strings.TrimSpace(query))
		joined := strings.Join(haystack, " ")
		return strings.Contains(joined, q)
	}
}

func searchableText(rec inventory.Record) []string {
	fields := []string{
		strings.ToLower(rec.CellLine),
		strings.ToLower(rec.ShortName),
		strings.ToLower(rec.Note),
	}
	for _, v := range rec.Fields {
		fields = append(fields, strings.ToLower(fmt.Sprintf("%v", v)))
	}
	return fields
}

// lastActivity is the latest of frozen_at and all event dates.
func lastActivity(rec inventory.Record) (time.Time, bool) {
	var latest time.Time
	found := false
	if t, ok := inventory.ParseDate(rec.FrozenAt); ok {
		latest, found = t, true
	}
	for _, ev := range rec.Events {
		if t, ok := inventory.ParseDate(ev.Date); ok && t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

func containsInt(list []int, want int) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
