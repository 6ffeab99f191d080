package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"cryobank/agent/approval"
	"cryobank/agent/llm"
	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/ops"
	"cryobank/plan"
)

// Dispatcher routes provider tool calls: validate shape, normalize loose
// arguments, then stage (write tools, when a plan queue is configured),
// confirm (manage_boxes), or execute through the operation layer. Every
// path returns the uniform envelope; nothing panics past this boundary.
type Dispatcher struct {
	ops    *ops.Service
	plans  *plan.Store
	gate   plan.Gate
	broker *approval.Broker
	log    zerolog.Logger
}

func NewDispatcher(service *ops.Service, plans *plan.Store, broker *approval.Broker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ops:    service,
		plans:  plans,
		broker: broker,
		log:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// StagingActive reports whether write tools are being staged for approval.
func (d *Dispatcher) StagingActive() bool { return d.plans != nil }

// Dispatch runs one tool call to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, actor contract.ActorContext, call llm.ToolCall) contract.Result {
	def, ok := Lookup(call.Name)
	if !ok {
		return contract.Failure(contract.CodeUnknownTool,
			fmt.Sprintf("unknown tool %q", call.Name)).
			WithHint("available tools: " + strings.Join(Names(), ", "))
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput,
				fmt.Sprintf("%s: arguments are not a JSON object: %v", call.Name, err)).
				WithHint(hintFor(def))
		}
	}
	if problems := validateArgs(def, args); len(problems) > 0 {
		return contract.Failure(contract.CodeInvalidToolInput,
			fmt.Sprintf("%s: invalid arguments", call.Name)).
			WithErrors(problems...).
			WithHint(hintFor(def))
	}

	d.log.Debug().Str("tool", call.Name).Str("call", call.ID).Msg("dispatching tool call")
	res := d.route(ctx, actor, def, args)
	if !res.OK {
		d.log.Debug().Str("tool", call.Name).Str("code", res.ErrorCode).Msg("tool call failed")
	}
	return res
}

func (d *Dispatcher) route(ctx context.Context, actor contract.ActorContext, def Definition, args map[string]any) contract.Result {
	layout := d.layout()
	switch def.Name {
	case ToolSearchRecords:
		var req ops.SearchRequest
		if err := decodeArgsResult(args, &req, def); !err.OK {
			return err
		}
		return d.ops.SearchRecords(req)
	case ToolListEmptyPositions:
		box, _ := asInt(args["box"])
		return d.ops.ListEmptyPositions(box)
	case ToolQueryEvents:
		var req ops.EventQuery
		if err := decodeArgsResult(args, &req, def); !err.OK {
			return err
		}
		return d.ops.QueryEvents(req)
	case ToolRecommendPositions:
		var req ops.RecommendRequest
		if err := decodeArgsResult(args, &req, def); !err.OK {
			return err
		}
		return d.ops.RecommendPositions(req)
	case ToolGenerateStats:
		return d.ops.GenerateStats()
	case ToolGetRawEntries:
		ids, ok := asIntSlice(args["ids"])
		if !ok {
			return contract.Failure(contract.CodeInvalidToolInput, "ids must be an integer array").
				WithHint(hintFor(def))
		}
		return d.ops.GetRawEntries(ids)
	case ToolManageStaged:
		return d.manageStaged(args)

	case ToolAddEntry, ToolEditEntry, ToolRecordEvent, ToolBatchEvents, ToolRollback:
		if err := d.normalizeWriteArgs(def.Name, args, layout); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error()).WithHint(hintFor(def))
		}
		if d.plans != nil {
			return d.stage(actor, def, args)
		}
		return d.executeWrite(ctx, actor, def.Name, args)

	case ToolManageBoxes:
		return d.manageBoxes(ctx, actor, args)
	case ToolQuestion:
		return d.question(ctx, actor, args)
	default:
		return contract.Failure(contract.CodeUnknownTool,
			fmt.Sprintf("tool %q has no route", def.Name))
	}
}

func (d *Dispatcher) executeWrite(ctx context.Context, actor contract.ActorContext, name string, args map[string]any) contract.Result {
	switch name {
	case ToolAddEntry:
		var req ops.AddEntryRequest
		if err := decodeArgs(args, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return d.ops.AddEntry(ctx, actor, req)
	case ToolEditEntry:
		var req ops.EditEntryRequest
		if err := decodeArgs(args, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return d.ops.EditEntry(ctx, actor, req)
	case ToolRecordEvent:
		var req ops.EventRequest
		if err := decodeArgs(args, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return d.ops.RecordEvent(ctx, actor, req)
	case ToolBatchEvents:
		var req struct {
			Entries []ops.EventRequest `json:"entries"`
		}
		if err := decodeArgs(args, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return d.ops.BatchEvents(ctx, actor, req.Entries)
	case ToolRollback:
		target, _ := args["backup_path"].(string)
		return d.ops.Rollback(ctx, actor, target)
	}
	return contract.Failure(contract.CodeUnknownTool, fmt.Sprintf("no write route for %q", name))
}

// manageBoxes asks the human before touching the box count.
func (d *Dispatcher) manageBoxes(ctx context.Context, actor contract.ActorContext, args map[string]any) contract.Result {
	count, ok := asInt(args["box_count"])
	if !ok {
		return contract.Failure(contract.CodeInvalidToolInput, "box_count must be an integer")
	}
	if d.broker != nil {
		answer, err := d.broker.Ask(ctx, approval.Request{
			Kind:   approval.KindConfirm,
			Prompt: fmt.Sprintf("Change the box count to %d?", count),
			Detail: map[string]any{"box_count": count},
			Actor:  actor,
		})
		switch {
		case errors.Is(err, approval.ErrTimeout):
			return contract.Failure(contract.CodeConfirmTimeout,
				"no confirmation arrived in time; the box count is unchanged")
		case err != nil:
			return contract.Failure(contract.CodeUserCancelled, err.Error())
		case !answer.Approved:
			return contract.Failure(contract.CodeUserCancelled,
				"the human declined the box count change")
		}
	}
	return d.ops.AdjustBoxes(ctx, actor, count)
}

// question relays a clarifying question and returns the human's answer as
// the tool observation.
func (d *Dispatcher) question(ctx context.Context, actor contract.ActorContext, args map[string]any) contract.Result {
	prompt, _ := args["question"].(string)
	if strings.TrimSpace(prompt) == "" {
		return contract.Failure(contract.CodeInvalidToolInput, "question must not be empty")
	}
	if d.broker == nil {
		return contract.Failure(contract.CodeQuestionCancel, "no approval surface is attached")
	}
	answer, err := d.broker.Ask(ctx, approval.Request{
		Kind:   approval.KindQuestion,
		Prompt: prompt,
		Actor:  actor,
	})
	switch {
	case errors.Is(err, approval.ErrTimeout):
		return contract.Failure(contract.CodeQuestionTimeout,
			"the human did not answer in time; proceed with the information you have")
	case err != nil:
		return contract.Failure(contract.CodeQuestionCancel, err.Error())
	}
	return contract.Success(map[string]any{"answer": answer.Text})
}

func (d *Dispatcher) manageStaged(args map[string]any) contract.Result {
	if d.plans == nil {
		return contract.Failure(contract.CodeNoPlanStore, "no plan queue is configured on this surface")
	}
	action, _ := args["action"].(string)
	switch action {
	case "list", "":
		items := d.plans.List()
		rows := make([]map[string]any, 0, len(items))
		for i, it := range items {
			rows = append(rows, map[string]any{
				"index": i, "action": it.Action, "label": it.Describe(), "id": it.ID,
			})
		}
		return contract.Success(map[string]any{"staged": rows, "count": len(rows)})
	case "remove":
		idx, ok := asInt(args["index"])
		if !ok {
			return contract.Failure(contract.CodeInvalidToolInput, "index is required for remove")
		}
		item, err := d.plans.RemoveByIndex(idx)
		if err != nil {
			return contract.Failure(contract.CodeNotFound, err.Error())
		}
		return contract.Success(map[string]any{"removed": item.Describe()})
	case "clear":
		return contract.Success(map[string]any{"cleared": d.plans.Clear()})
	default:
		return contract.Failure(contract.CodeInvalidToolInput,
			fmt.Sprintf("unknown manage_staged action %q", action))
	}
}

// normalizeWriteArgs coerces loose position fields before staging/decoding.
func (d *Dispatcher) normalizeWriteArgs(name string, args map[string]any, layout inventory.BoxLayout) error {
	switch name {
	case ToolAddEntry, ToolRecordEvent:
		return normalizePositions(args, "positions", layout)
	case ToolBatchEvents:
		entries, ok := args["entries"].([]any)
		if !ok {
			return fmt.Errorf("%w: entries must be an array", contract.ErrValidation)
		}
		for i, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %s is not an object", contract.ErrValidation, entryRef(i))
			}
			if err := normalizePositions(entry, "positions", layout); err != nil {
				return fmt.Errorf("%s: %w", entryRef(i), err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) layout() inventory.BoxLayout {
	doc, err := d.ops.Store().Load()
	if err != nil || doc == nil {
		return inventory.BoxLayout{}
	}
	return doc.Meta.Layout
}

func decodeArgsResult(args map[string]any, out any, def Definition) contract.Result {
	if err := decodeArgs(args, out); err != nil {
		return contract.Failure(contract.CodeInvalidToolInput, err.Error()).WithHint(hintFor(def))
	}
	return contract.Result{OK: true}
}

func asIntSlice(value any) ([]int, bool) {
	switch v := value.(type) {
	case []int:
		return v, true
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			n, ok := asInt(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}

func entryRef(i int) string { return fmt.Sprintf("entry %d", i+1) }
