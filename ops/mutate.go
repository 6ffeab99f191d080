package ops

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/store"
)

// AddEntryRequest creates one record. ID 0 means auto-assign.
type AddEntryRequest struct {
	ID        int            `json:"id"`
	CellLine  string         `json:"cell_line"`
	ShortName string         `json:"short_name"`
	Box       int            `json:"box"`
	Positions []int          `json:"positions"`
	FrozenAt  string         `json:"frozen_at"`
	Note      string         `json:"note"`
	Fields    map[string]any `json:"fields"`
}

func (s *Service) AddEntry(ctx context.Context, actor contract.ActorContext, req AddEntryRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if req.CellLine == "" {
		return contract.Failure(contract.CodeValidationFailed, "cell_line is required")
	}
	if req.Box < 1 || req.Box > doc.Meta.BoxCount {
		return contract.Failure(contract.CodeInvalidBox,
			fmt.Sprintf("box %d out of range 1..%d", req.Box, doc.Meta.BoxCount))
	}
	if len(req.Positions) == 0 {
		return contract.Failure(contract.CodeInvalidPosition, "at least one position is required")
	}
	slots := doc.Meta.Layout.Slots()
	for _, p := range req.Positions {
		if p < 1 || p > slots {
			return contract.Failure(contract.CodeInvalidPosition,
				fmt.Sprintf("position %d out of range 1..%d", p, slots))
		}
	}
	if req.FrozenAt == "" {
		req.FrozenAt = time.Now().Format(inventory.DateLayout)
	}
	if !inventory.ValidDate(req.FrozenAt) {
		return contract.Failure(contract.CodeInvalidDate,
			fmt.Sprintf("frozen_at %q is not %s", req.FrozenAt, inventory.DateLayout))
	}
	if req.ID != 0 && inventory.FindRecord(doc.Records, req.ID) != nil {
		return contract.Failure(contract.CodeDuplicateID,
			fmt.Sprintf("record id %d already exists", req.ID))
	}
	if conflicts := occupiedTargets(doc, req.Box, req.Positions); len(conflicts) != 0 {
		return contract.Failure(contract.CodePositionConflict,
			fmt.Sprintf("box %d positions %v already hold active tubes", req.Box, conflicts))
	}

	var assignedID int
	outcome, err := s.store.Mutate(ctx, store.Change{
		Action:   "add_entry",
		ToolName: "add_entry",
		Actor:    actor,
		Input:    map[string]any{"cell_line": req.CellLine, "box": req.Box, "positions": req.Positions},
		Apply: func(doc *inventory.Document) error {
			id := req.ID
			if id == 0 {
				id = inventory.NextID(doc.Records)
			}
			assignedID = id
			positions := append([]int(nil), req.Positions...)
			sort.Ints(positions)
			doc.Records = append(doc.Records, inventory.Record{
				ID:        id,
				CellLine:  req.CellLine,
				ShortName: req.ShortName,
				Box:       req.Box,
				Positions: positions,
				FrozenAt:  req.FrozenAt,
				Note:      req.Note,
				Fields:    req.Fields,
			})
			return nil
		},
	})
	if err != nil {
		return failure(err)
	}
	return outcomeResult(outcome, map[string]any{
		"id": assignedID, "box": req.Box, "positions": req.Positions,
	})
}

// EditEntryRequest updates record metadata. Nil pointers leave the field as
// is; positions, box, and history are not editable here.
type EditEntryRequest struct {
	ID        int            `json:"id"`
	CellLine  *string        `json:"cell_line"`
	ShortName *string        `json:"short_name"`
	FrozenAt  *string        `json:"frozen_at"`
	Note      *string        `json:"note"`
	Fields    map[string]any `json:"fields"`
}

func (s *Service) EditEntry(ctx context.Context, actor contract.ActorContext, req EditEntryRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if inventory.FindRecord(doc.Records, req.ID) == nil {
		return contract.Failure(contract.CodeNotFound,
			fmt.Sprintf("record id %d not found", req.ID))
	}
	if req.CellLine != nil && *req.CellLine == "" {
		return contract.Failure(contract.CodeValidationFailed, "cell_line must not be emptied")
	}
	if req.FrozenAt != nil && !inventory.ValidDate(*req.FrozenAt) {
		return contract.Failure(contract.CodeInvalidDate,
			fmt.Sprintf("frozen_at %q is not %s", *req.FrozenAt, inventory.DateLayout))
	}

	changed := make(map[string]any)
	outcome, err := s.store.Mutate(ctx, store.Change{
		Action:   "edit_entry",
		ToolName: "edit_entry",
		Actor:    actor,
		Input:    map[string]any{"id": req.ID},
		Apply: func(doc *inventory.Document) error {
			rec := inventory.FindRecord(doc.Records, req.ID)
			if rec == nil {
				return fmt.Errorf("%w: record id %d not found", contract.ErrNotFound, req.ID)
			}
			if req.CellLine != nil {
				rec.CellLine = *req.CellLine
				changed["cell_line"] = *req.CellLine
			}
			if req.ShortName != nil {
				rec.ShortName = *req.ShortName
				changed["short_name"] = *req.ShortName
			}
			if req.FrozenAt != nil {
				rec.FrozenAt = *req.FrozenAt
				changed["frozen_at"] = *req.FrozenAt
			}
			if req.Note != nil {
				rec.Note = *req.Note
				changed["note"] = *req.Note
			}
			for k, v := range req.Fields {
				if rec.Fields == nil {
					rec.Fields = make(map[string]any)
				}
				rec.Fields[k] = v
				changed["fields."+k] = v
			}
			if len(changed) == 0 {
				return fmt.Errorf("%w: no editable fields supplied", contract.ErrValidation)
			}
			return nil
		},
	})
	if err != nil {
		return failure(err)
	}
	return outcomeResult(outcome, map[string]any{"id": req.ID, "changed": changed})
}

// EventRequest records one history event against one record.
type EventRequest struct {
	RecordID   int    `json:"record_id"`
	Action     string `json:"action"`
	Date       string `json:"date"`
	Positions  []int  `json:"positions"`
	Note       string `json:"note"`
	ToBox      int    `json:"to_box"`
	ToPosition int    `json:"to_position"`
}

func (s *Service) RecordEvent(ctx context.Context, actor contract.ActorContext, req EventRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	normalized, res, ok := checkEventRequest(doc, req, 0)
	if !ok {
		return res
	}
	outcome, err := s.store.Mutate(ctx, store.Change{
		Action:   string(normalized.action),
		ToolName: "record_event",
		Actor:    actor,
		Input: map[string]any{
			"record_id": req.RecordID, "action": string(normalized.action),
			"positions": normalized.positions,
		},
		Apply: func(doc *inventory.Document) error {
			return applyEvent(doc, normalized)
		},
	})
	if err != nil {
		return failure(err)
	}
	return outcomeResult(outcome, map[string]any{
		"record_id": req.RecordID,
		"action":    string(normalized.action),
		"positions": normalized.positions,
	})
}

// BatchEvents applies several events as one atomic write. Any invalid entry,
// or two entries targeting the same slot, fails the whole batch.
func (s *Service) BatchEvents(ctx context.Context, actor contract.ActorContext, entries []EventRequest) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if len(entries) == 0 {
		return contract.Failure(contract.CodeBatchInvalid, "batch must not be empty")
	}

	normalized := make([]checkedEvent, 0, len(entries))
	var failures []string
	targets := make(map[string]int)     // record/position consumed by the batch
	destinations := make(map[string]int) // box/position written to by moves
	for i, req := range entries {
		ev, res, ok := checkEventRequest(doc, req, i)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: %s", entryLabel(i), res.Message))
			continue
		}
		for _, p := range ev.positions {
			key := fmt.Sprintf("%d/%d", ev.recordID, p)
			if prev, dup := targets[key]; dup {
				failures = append(failures, fmt.Sprintf(
					"%s: record %d position %d already targeted by %s",
					entryLabel(i), ev.recordID, p, entryLabel(prev)))
				continue
			}
			targets[key] = i
		}
		if ev.action == inventory.ActionMove {
			key := fmt.Sprintf("%d/%d", ev.toBox, ev.toPosition)
			if prev, dup := destinations[key]; dup {
				failures = append(failures, fmt.Sprintf(
					"%s: box %d position %d is already the destination of %s",
					entryLabel(i), ev.toBox, ev.toPosition, entryLabel(prev)))
				continue
			}
			destinations[key] = i
		}
		normalized = append(normalized, ev)
	}
	if len(failures) > 0 {
		return contract.Failure(contract.CodeBatchInvalid,
			fmt.Sprintf("%d of %d batch entries failed; nothing was applied", len(failures), len(entries))).
			WithErrors(failures...)
	}

	outcome, err := s.store.Mutate(ctx, store.Change{
		Action:   "batch_events",
		ToolName: "batch_events",
		Actor:    actor,
		Input:    map[string]any{"entry_count": len(entries)},
		Apply: func(doc *inventory.Document) error {
			for i, ev := range normalized {
				if err := applyEvent(doc, ev); err != nil {
					return fmt.Errorf("%s: %w", entryLabel(i), err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return failure(err)
	}
	applied := make([]map[string]any, 0, len(normalized))
	for _, ev := range normalized {
		applied = append(applied, map[string]any{
			"record_id": ev.recordID, "action": string(ev.action), "positions": ev.positions,
		})
	}
	return outcomeResult(outcome, map[string]any{"applied": applied, "entry_count": len(applied)})
}

// AdjustBoxes grows or shrinks the box count. Shrinking below a box that
// still holds records is rejected.
func (s *Service) AdjustBoxes(ctx context.Context, actor contract.ActorContext, newCount int) contract.Result {
	doc, fail, ok := s.load()
	if !ok {
		return fail
	}
	if newCount < 1 {
		return contract.Failure(contract.CodeInvalidCount,
			fmt.Sprintf("box count must be at least 1, got %d", newCount))
	}
	if newCount < doc.Meta.BoxCount {
		occupied := make(map[int]struct{})
		for _, rec := range doc.Records {
			if rec.Box > newCount {
				occupied[rec.Box] = struct{}{}
			}
		}
		if len(occupied) > 0 {
			boxes := make([]int, 0, len(occupied))
			for b := range occupied {
				boxes = append(boxes, b)
			}
			sort.Ints(boxes)
			return contract.Failure(contract.CodeBoxOccupied,
				fmt.Sprintf("cannot shrink to %d boxes: boxes %v still hold records", newCount, boxes))
		}
	}
	previous := doc.Meta.BoxCount
	outcome, err := s.store.Mutate(ctx, store.Change{
		Action:   "adjust_boxes",
		ToolName: "manage_boxes",
		Actor:    actor,
		Input:    map[string]any{"box_count": newCount},
		Details:  map[string]any{"previous_box_count": previous},
		Apply: func(doc *inventory.Document) error {
			doc.Meta.BoxCount = newCount
			return nil
		},
	})
	if err != nil {
		return failure(err)
	}
	return outcomeResult(outcome, map[string]any{
		"box_count": newCount, "previous_box_count": previous,
	})
}

// Rollback restores the document from a backup ("" or "latest" picks the
// newest one).
func (s *Service) Rollback(ctx context.Context, actor contract.ActorContext, target string) contract.Result {
	outcome, err := s.store.Rollback(ctx, target, actor)
	if err != nil {
		res := failure(err)
		switch res.ErrorCode {
		case contract.CodeNotFound:
			res.ErrorCode = contract.CodeNoBackup
		case contract.CodeValidationFailed:
			res.ErrorCode = contract.CodeRollbackBlocked
		}
		return res
	}
	payload := map[string]any{"record_count": len(outcome.Document.Records)}
	if outcome.Document.Meta.InstanceID != "" {
		payload["instance_id"] = outcome.Document.Meta.InstanceID
	}
	return outcomeResult(outcome, payload)
}

// checkedEvent is an EventRequest after normalization and preflight.
type checkedEvent struct {
	recordID   int
	action     inventory.Action
	date       string
	positions  []int
	note       string
	toBox      int
	toPosition int
}

// checkEventRequest validates one event against the current snapshot. The
// index is only used for batch error labels.
func checkEventRequest(doc *inventory.Document, req EventRequest, _ int) (checkedEvent, contract.Result, bool) {
	var ev checkedEvent
	rec := inventory.FindRecord(doc.Records, req.RecordID)
	if rec == nil {
		return ev, contract.Failure(contract.CodeNotFound,
			fmt.Sprintf("record id %d not found", req.RecordID)), false
	}
	action := inventory.NormalizeAction(req.Action)
	if !action.Valid() {
		return ev, contract.Failure(contract.CodeInvalidAction,
			fmt.Sprintf("unknown action %q", req.Action)), false
	}
	date := req.Date
	if date == "" {
		date = time.Now().Format(inventory.DateLayout)
	}
	if !inventory.ValidDate(date) {
		return ev, contract.Failure(contract.CodeInvalidDate,
			fmt.Sprintf("date %q is not %s", date, inventory.DateLayout)), false
	}
	active := inventory.ActivePositions(*rec)
	positions := req.Positions
	if len(positions) == 0 {
		// Default to every active position, matching single-tube usage.
		positions = active
	}
	if len(positions) == 0 {
		return ev, contract.Failure(contract.CodeInvalidPosition,
			fmt.Sprintf("record %d has no active positions left", req.RecordID)), false
	}
	for _, p := range positions {
		if !containsInt(active, p) {
			return ev, contract.Failure(contract.CodeInvalidPosition,
				fmt.Sprintf("position %d of record %d is not active (active: %v)",
					p, req.RecordID, active)), false
		}
	}
	if action == inventory.ActionMove {
		if len(positions) != 1 {
			return ev, contract.Failure(contract.CodeInvalidPosition,
				"move handles exactly one position per event"), false
		}
		toBox := req.ToBox
		if toBox == 0 {
			toBox = rec.Box
		}
		if toBox < 1 || toBox > doc.Meta.BoxCount {
			return ev, contract.Failure(contract.CodeInvalidBox,
				fmt.Sprintf("destination box %d out of range 1..%d", toBox, doc.Meta.BoxCount)), false
		}
		slots := doc.Meta.Layout.Slots()
		if req.ToPosition < 1 || req.ToPosition > slots {
			return ev, contract.Failure(contract.CodeInvalidPosition,
				fmt.Sprintf("destination position %d out of range 1..%d", req.ToPosition, slots)), false
		}
		if toBox != rec.Box && len(active) > 1 {
			return ev, contract.Failure(contract.CodeInvalidBox,
				fmt.Sprintf("record %d holds %d active tubes in box %d; a record spans one box, move them individually first",
					req.RecordID, len(active), rec.Box)), false
		}
		if conflicts := occupiedTargets(doc, toBox, []int{req.ToPosition}); len(conflicts) != 0 {
			// Moving within the same slot is a no-op, everything else collides.
			if !(toBox == rec.Box && req.ToPosition == positions[0]) {
				return ev, contract.Failure(contract.CodePositionConflict,
					fmt.Sprintf("box %d position %d already holds an active tube", toBox, req.ToPosition)), false
			}
		}
		ev.toBox, ev.toPosition = toBox, req.ToPosition
	}
	ev.recordID = req.RecordID
	ev.action = action
	ev.date = date
	ev.positions = append([]int(nil), positions...)
	sort.Ints(ev.positions)
	ev.note = req.Note
	return ev, contract.Result{}, true
}

// applyEvent mutates the candidate document. Move rewrites the record's
// declared positions so activity follows the tube; terminal actions only
// append history and let the activity rules consume the slot.
func applyEvent(doc *inventory.Document, ev checkedEvent) error {
	rec := inventory.FindRecord(doc.Records, ev.recordID)
	if rec == nil {
		return fmt.Errorf("%w: record id %d not found", contract.ErrNotFound, ev.recordID)
	}
	event := inventory.Event{
		Date:      ev.date,
		Action:    ev.action,
		Positions: append([]int(nil), ev.positions...),
		Note:      ev.note,
	}
	if ev.action == inventory.ActionMove {
		event.ToBox = ev.toBox
		event.ToPosition = ev.toPosition
		moved := ev.positions[0]
		out := make([]int, 0, len(rec.Positions))
		for _, p := range rec.Positions {
			if p != moved {
				out = append(out, p)
			}
		}
		out = append(out, ev.toPosition)
		sort.Ints(out)
		rec.Positions = out
		rec.Box = ev.toBox
	}
	rec.Events = append(rec.Events, event)
	return nil
}

// occupiedTargets returns which of the wanted positions are already active
// in the given box.
func occupiedTargets(doc *inventory.Document, box int, wanted []int) []int {
	occupied := make(map[int]struct{})
	for _, p := range inventory.Occupancy(doc.Records)[box] {
		occupied[p] = struct{}{}
	}
	var conflicts []int
	for _, p := range wanted {
		if _, used := occupied[p]; used {
			conflicts = append(conflicts, p)
		}
	}
	sort.Ints(conflicts)
	return conflicts
}
