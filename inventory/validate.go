package inventory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Report carries the outcome of a full-document validation pass.
// Errors block writes; warnings are surfaced but never block.
type Report struct {
	Errors   []string
	Warnings []string
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

// FormatErrors renders a blocked-write message with the leading violations.
func (r Report) FormatErrors(prefix string) string {
	if len(r.Errors) == 0 {
		return prefix
	}
	top := r.Errors
	more := 0
	if len(top) > 6 {
		more = len(top) - 6
		top = top[:6]
	}
	lines := []string{prefix}
	for _, msg := range top {
		lines = append(lines, "- "+msg)
	}
	if more > 0 {
		lines = append(lines, fmt.Sprintf("- ... and %d more", more))
	}
	return strings.Join(lines, "\n")
}

func recordLabel(rec Record, idx int) string {
	return fmt.Sprintf("record #%d (id=%d)", idx+1, rec.ID)
}

// ValidateDocument checks the whole candidate document: field shape, date
// parseability, box/position bounds, event vocabulary, duplicate IDs and
// active-position conflicts. Always run over the entire document, not the
// delta: one mutation can expose a conflict between two untouched records.
func ValidateDocument(doc *Document) Report {
	var report Report
	if doc == nil {
		report.Errors = append(report.Errors, "document is nil")
		return report
	}

	boxCount := doc.Meta.BoxCount
	if boxCount <= 0 {
		report.Errors = append(report.Errors, "meta: box_count must be a positive integer")
	}
	slots := doc.Meta.Layout.Slots()

	for idx, rec := range doc.Records {
		label := recordLabel(rec, idx)

		if rec.ID <= 0 {
			report.Errors = append(report.Errors, label+": 'id' must be a positive integer")
		}
		if rec.Box < 1 || (boxCount > 0 && rec.Box > boxCount) {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: 'box' out of range (1-%d)", label, boxCount))
		}
		if len(rec.Positions) == 0 {
			if !hasTerminalHistory(rec) {
				report.Errors = append(report.Errors, label+": no positions and no takeout/discard history")
			}
		}
		seenPos := make(map[int]struct{}, len(rec.Positions))
		for _, p := range rec.Positions {
			if p < 1 || p > slots {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: position %d out of range (1-%d)", label, p, slots))
				continue
			}
			if _, dup := seenPos[p]; dup {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: duplicate position %d", label, p))
			}
			seenPos[p] = struct{}{}
		}

		if !ValidDate(rec.FrozenAt) {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: 'frozen_at' must be %s", label, DateLayout))
		} else if t, _ := ParseDate(rec.FrozenAt); t.After(time.Now()) {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: frozen date %s is in the future", label, rec.FrozenAt))
		}

		for evIdx, ev := range rec.Events {
			evLabel := fmt.Sprintf("%s: thaw_events[%d]", label, evIdx+1)
			if !ev.Action.Valid() {
				report.Errors = append(report.Errors, evLabel+fmt.Sprintf(" has invalid action %q", string(ev.Action)))
			}
			if !ValidDate(ev.Date) {
				report.Errors = append(report.Errors, evLabel+" has invalid date")
			}
			if len(ev.Positions) == 0 {
				report.Errors = append(report.Errors, evLabel+" positions must be non-empty")
				continue
			}
			seenEv := make(map[int]struct{}, len(ev.Positions))
			for _, p := range ev.Positions {
				if p < 1 || p > slots {
					report.Errors = append(report.Errors, evLabel+fmt.Sprintf(" position %d out of range (1-%d)", p, slots))
					continue
				}
				if _, dup := seenEv[p]; dup {
					report.Errors = append(report.Errors, evLabel+fmt.Sprintf(" duplicate position %d", p))
				}
				seenEv[p] = struct{}{}
			}
			if ev.Action == ActionMove && ev.ToPosition == 0 {
				report.Errors = append(report.Errors, evLabel+" move event requires a destination position")
			}
		}

		report.Warnings = append(report.Warnings, validateSchemaFields(rec, label, doc.Meta.FieldSchema, &report)...)
	}

	report.Errors = append(report.Errors, checkDuplicateIDs(doc.Records)...)
	report.Errors = append(report.Errors, checkPositionConflicts(doc.Records)...)
	return report
}

func validateSchemaFields(rec Record, label string, schema []FieldDef, report *Report) []string {
	var warnings []string
	for _, def := range schema {
		value, present := rec.Fields[def.Key]
		if def.Required {
			if !present || value == nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: missing required field '%s'", label, def.Key))
				continue
			}
			if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: '%s' must be a non-empty string", label, def.Key))
			}
		}
	}
	if strings.TrimSpace(rec.CellLine) == "" {
		warnings = append(warnings, label+": missing 'cell_line'")
	}
	return warnings
}

func hasTerminalHistory(rec Record) bool {
	for _, ev := range rec.Events {
		if ev.Action.Terminal() {
			return true
		}
	}
	return false
}

func checkDuplicateIDs(records []Record) []string {
	var errs []string
	seen := make(map[int]int, len(records))
	for idx, rec := range records {
		if rec.ID <= 0 {
			continue
		}
		if prev, dup := seen[rec.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate id %d: record #%d and record #%d", rec.ID, prev+1, idx+1))
			continue
		}
		seen[rec.ID] = idx
	}
	return errs
}

func checkPositionConflicts(records []Record) []string {
	type slot struct{ box, pos int }
	usage := make(map[slot][]int)
	for idx, rec := range records {
		for _, p := range ActivePositions(rec) {
			key := slot{rec.Box, p}
			usage[key] = append(usage[key], idx)
		}
	}

	keys := make([]slot, 0, len(usage))
	for key, holders := range usage {
		if len(holders) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].box != keys[j].box {
			return keys[i].box < keys[j].box
		}
		return keys[i].pos < keys[j].pos
	})

	var errs []string
	for _, key := range keys {
		labels := make([]string, 0, len(usage[key]))
		for _, idx := range usage[key] {
			labels = append(labels, fmt.Sprintf("#%d (id=%d)", idx+1, records[idx].ID))
		}
		errs = append(errs, fmt.Sprintf(
			"position conflict: box %d position %d occupied by multiple records: %s",
			key.box, key.pos, strings.Join(labels, ", ")))
	}
	return errs
}
