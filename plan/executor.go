package plan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"cryobank/contract"
	"cryobank/ops"
)

// Executor replays approved staged items through the operation layer.
// Each item is one pipeline write: it either fully applies or fully fails.
type Executor struct {
	store *Store
	ops   *ops.Service
	log   zerolog.Logger
}

func NewExecutor(store *Store, service *ops.Service, logger zerolog.Logger) *Executor {
	return &Executor{
		store: store,
		ops:   service,
		log:   logger.With().Str("component", "plan").Logger(),
	}
}

// ItemResult pairs one staged item with its replay outcome.
type ItemResult struct {
	Item   Item            `json:"item"`
	Result contract.Result `json:"result"`
}

// Approve executes the staged items at the given indices, in queue order.
// Items that apply are removed from the queue; failed items stay staged so
// the caller can fix and retry or discard them.
func (e *Executor) Approve(ctx context.Context, actor contract.ActorContext, indices []int) []ItemResult {
	items := e.store.List()
	if len(indices) == 0 {
		indices = make([]int, len(items))
		for i := range items {
			indices[i] = i
		}
	}

	results := make([]ItemResult, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(items) {
			results = append(results, ItemResult{Result: contract.Failure(
				contract.CodeNotFound, fmt.Sprintf("staged index %d out of range", idx))})
			continue
		}
		item := items[idx]
		res := e.execute(ctx, actor, item)
		if res.OK {
			if _, err := e.store.RemoveByKey(item.ID); err != nil {
				e.log.Warn().Err(err).Str("item", item.ID).Msg("approved item already gone from queue")
			}
			e.log.Info().Str("action", item.Action).Str("item", item.ID).Msg("staged item applied")
		} else {
			e.log.Warn().Str("action", item.Action).Str("code", res.ErrorCode).
				Str("item", item.ID).Msg("staged item failed to apply")
		}
		results = append(results, ItemResult{Item: item, Result: res})
	}
	return results
}

// Discard removes staged items without executing them. Empty indices
// clears the whole queue.
func (e *Executor) Discard(indices []int) int {
	if len(indices) == 0 {
		return e.store.Clear()
	}
	items := e.store.List()
	removed := 0
	// Walk high to low so earlier removals don't shift later indices.
	for i := len(indices) - 1; i >= 0; i-- {
		idx := indices[i]
		if idx < 0 || idx >= len(items) {
			continue
		}
		if _, err := e.store.RemoveByKey(items[idx].ID); err == nil {
			removed++
		}
	}
	return removed
}

func (e *Executor) execute(ctx context.Context, actor contract.ActorContext, item Item) contract.Result {
	switch item.Action {
	case "add_entry":
		var req ops.AddEntryRequest
		if err := decodePayload(item.Payload, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return e.ops.AddEntry(ctx, actor, req)
	case "edit_entry":
		var req ops.EditEntryRequest
		if err := decodePayload(item.Payload, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		return e.ops.EditEntry(ctx, actor, req)
	case "takeout", "thaw", "discard", "move":
		var req ops.EventRequest
		if err := decodePayload(item.Payload, &req); err != nil {
			return contract.Failure(contract.CodeInvalidToolInput, err.Error())
		}
		req.RecordID = item.RecordID
		req.Action = item.Action
		if item.Position != 0 {
			req.Positions = []int{item.Position}
		}
		if item.Action == "move" {
			req.ToBox = item.ToBox
			req.ToPosition = item.ToPosition
		}
		return e.ops.RecordEvent(ctx, actor, req)
	case "rollback":
		target, _ := item.Payload["backup_path"].(string)
		return e.ops.Rollback(ctx, actor, target)
	default:
		return contract.Failure(contract.CodeInvalidToolInput,
			fmt.Sprintf("unknown staged action %q", item.Action))
	}
}

// decodePayload round-trips the loosely-typed payload into a typed request.
func decodePayload(payload map[string]any, out any) error {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("staged payload not serializable: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("staged payload does not match %T: %w", out, err)
	}
	return nil
}
