package tool

import (
	"fmt"

	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/plan"
)

// stage converts a write call into plan items, gates each against the live
// document and the already-staged queue, and returns a proposal summary.
// Nothing is written; execution happens on approval.
func (d *Dispatcher) stage(actor contract.ActorContext, def Definition, args map[string]any) contract.Result {
	doc, err := d.ops.Store().Load()
	if err != nil {
		return contract.Failure(contract.CodeLoadFailed, err.Error())
	}

	items, res := buildItems(def.Name, args, actor)
	if !res.OK {
		return res
	}

	var staged []plan.Item
	var blocked []string
	for _, item := range items {
		if reasons := d.gate.Validate(append(d.plans.List(), staged...), item, doc); len(reasons) > 0 {
			for _, r := range reasons {
				blocked = append(blocked, fmt.Sprintf("%s: %s", item.Describe(), r))
			}
			continue
		}
		staged = append(staged, item)
	}
	if len(blocked) > 0 {
		return contract.Failure(contract.CodeStageBlocked,
			fmt.Sprintf("%d of %d proposed changes cannot apply; nothing was staged",
				len(blocked), len(items))).
			WithErrors(blocked...)
	}

	labels := make([]string, 0, len(staged))
	for _, item := range staged {
		if err := d.plans.Add(item); err != nil {
			return contract.Failure(contract.CodeStageBlocked, err.Error())
		}
		labels = append(labels, item.Describe())
	}
	d.log.Info().Int("items", len(staged)).Str("tool", def.Name).Msg("staged write proposal")

	res = contract.Success(map[string]any{
		"proposed":     labels,
		"staged_count": d.plans.Len(),
	})
	res.Staged = true
	res.Message = fmt.Sprintf("%d change(s) staged for approval; the inventory is untouched until a human approves them", len(staged))
	return res
}

// buildItems expands one write call into its staged items. record_event on
// several positions and batch_events both become one item per position, so
// the human can approve or discard tube by tube.
func buildItems(name string, args map[string]any, actor contract.ActorContext) ([]plan.Item, contract.Result) {
	source := actor.Channel
	switch name {
	case ToolAddEntry:
		positions, _ := args["positions"].([]int)
		box, _ := asInt(args["box"])
		cellLine, _ := args["cell_line"].(string)
		item := plan.NewItem("add_entry")
		item.Box = box
		if len(positions) > 0 {
			item.Position = positions[0]
		}
		item.Payload = args // the gate reads every claimed position from here
		item.Source = source
		item.Label = fmt.Sprintf("add %s to box %d positions %v", cellLine, box, positions)
		return []plan.Item{item}, contract.Result{OK: true}

	case ToolEditEntry:
		recordID, _ := asInt(args["id"])
		item := plan.NewItem("edit_entry")
		item.RecordID = recordID
		item.Payload = args
		item.Source = source
		item.Label = fmt.Sprintf("edit metadata of record %d", recordID)
		return []plan.Item{item}, contract.Result{OK: true}

	case ToolRecordEvent:
		return eventItems(args, source)

	case ToolBatchEvents:
		entries, _ := args["entries"].([]any)
		var items []plan.Item
		for i, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, contract.Failure(contract.CodeInvalidToolInput,
					fmt.Sprintf("%s is not an object", entryRef(i)))
			}
			sub, res := eventItems(entry, source)
			if !res.OK {
				res.Message = fmt.Sprintf("%s: %s", entryRef(i), res.Message)
				return nil, res
			}
			items = append(items, sub...)
		}
		if len(items) == 0 {
			return nil, contract.Failure(contract.CodeBatchInvalid, "entries must not be empty")
		}
		return items, contract.Result{OK: true}

	case ToolRollback:
		item := plan.NewItem("rollback")
		item.Payload = args
		item.Source = source
		if target, _ := args["backup_path"].(string); target != "" {
			item.Label = fmt.Sprintf("roll back to %s", target)
		}
		return []plan.Item{item}, contract.Result{OK: true}
	}
	return nil, contract.Failure(contract.CodeUnknownTool,
		fmt.Sprintf("tool %q cannot be staged", name))
}

func eventItems(args map[string]any, source string) ([]plan.Item, contract.Result) {
	recordID, ok := asInt(args["record_id"])
	if !ok {
		return nil, contract.Failure(contract.CodeInvalidToolInput, "record_id must be an integer")
	}
	rawAction, _ := args["action"].(string)
	action := inventory.NormalizeAction(rawAction)
	if !action.Valid() {
		return nil, contract.Failure(contract.CodeInvalidAction,
			fmt.Sprintf("unknown action %q", rawAction))
	}
	positions, _ := args["positions"].([]int)
	if len(positions) == 0 {
		return nil, contract.Failure(contract.CodeInvalidPosition,
			"positions are required when staging an event, so the proposal names the exact tubes")
	}
	box, _ := asInt(args["box"])

	payload := map[string]any{}
	if date, _ := args["date"].(string); date != "" {
		payload["date"] = date
	}
	if note, _ := args["note"].(string); note != "" {
		payload["note"] = note
	}

	items := make([]plan.Item, 0, len(positions))
	for _, p := range positions {
		item := plan.NewItem(string(action))
		item.RecordID = recordID
		item.Box = box
		item.Position = p
		item.Payload = payload
		item.Source = source
		if action == inventory.ActionMove {
			toBox, _ := asInt(args["to_box"])
			toPos, _ := asInt(args["to_position"])
			item.ToBox, item.ToPosition = toBox, toPos
		}
		items = append(items, item)
	}
	if action == inventory.ActionMove && len(items) > 1 {
		return nil, contract.Failure(contract.CodeInvalidPosition,
			"move stages one position per call; stage moves individually")
	}
	return items, contract.Result{OK: true}
}
