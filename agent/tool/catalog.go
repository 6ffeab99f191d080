// Package tool exposes the operation layer to the reasoning provider: a
// versioned catalog of named tools with JSON-schema arguments, and a
// dispatcher that validates, normalizes, stages, and executes calls.
package tool

import "cryobank/agent/llm"

// CatalogVersion changes whenever a tool contract changes shape.
const CatalogVersion = "v1"

// Tool names, read side.
const (
	ToolSearchRecords      = "search_records"
	ToolListEmptyPositions = "list_empty_positions"
	ToolQueryEvents        = "query_events"
	ToolRecommendPositions = "recommend_positions"
	ToolGenerateStats      = "generate_stats"
	ToolGetRawEntries      = "get_raw_entries"
	ToolManageStaged       = "manage_staged"
)

// Tool names, write side and specials.
const (
	ToolAddEntry    = "add_entry"
	ToolEditEntry   = "edit_entry"
	ToolRecordEvent = "record_event"
	ToolBatchEvents = "batch_events"
	ToolRollback    = "rollback"
	ToolManageBoxes = "manage_boxes"
	ToolQuestion    = "question"
)

// Definition is one catalog entry.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema, sent to the provider verbatim
	Required    []string
	Write       bool // staged when a plan queue is configured
	Confirm     bool // needs an explicit human yes before executing
	Alone       bool // must be the only call in its step
}

func obj(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var positionsProp = map[string]any{
	"type":        "string",
	"description": `Positions as "12", "1,2,3", or an ascending range "30-32". An integer array is also accepted.`,
}

var catalog = []Definition{
	{
		Name:        ToolSearchRecords,
		Description: "Search inventory records by keyword, cell line, box, position, or id. Modes: fuzzy (default), exact, keywords.",
		Parameters: obj(map[string]any{
			"query":        map[string]any{"type": "string", "description": "Text to match against cell line, short name, note, and custom fields."},
			"mode":         map[string]any{"type": "string", "enum": []string{"fuzzy", "exact", "keywords"}},
			"box":          map[string]any{"type": "integer"},
			"position":     map[string]any{"type": "integer"},
			"id":           map[string]any{"type": "integer"},
			"active_only":  map[string]any{"type": "boolean", "description": "Only records that still hold at least one tube."},
			"recent_days":  map[string]any{"type": "integer", "description": "Only records with activity in the last N days."},
			"recent_count": map[string]any{"type": "integer", "description": "Only the N most recently active records."},
			"limit":        map[string]any{"type": "integer"},
		}),
	},
	{
		Name:        ToolListEmptyPositions,
		Description: "List free slots, for one box or for every box.",
		Parameters: obj(map[string]any{
			"box": map[string]any{"type": "integer", "description": "Box number; omit for all boxes."},
		}),
	},
	{
		Name:        ToolQueryEvents,
		Description: "Query thaw/takeout/discard/move history, optionally within a date range or for one record. summary=true returns per-action counts.",
		Parameters: obj(map[string]any{
			"from":      map[string]any{"type": "string", "description": "Start date YYYY-MM-DD, inclusive."},
			"to":        map[string]any{"type": "string", "description": "End date YYYY-MM-DD, inclusive."},
			"action":    map[string]any{"type": "string", "description": "Filter by action; aliases like 取出 are accepted."},
			"record_id": map[string]any{"type": "integer"},
			"summary":   map[string]any{"type": "boolean"},
			"limit":     map[string]any{"type": "integer"},
		}),
	},
	{
		Name:        ToolRecommendPositions,
		Description: "Recommend free slots for new tubes. Prefers consecutive runs and topping up partially-used rows; never suggests an occupied slot.",
		Parameters: obj(map[string]any{
			"count":    map[string]any{"type": "integer", "description": "How many slots are needed."},
			"box":      map[string]any{"type": "integer", "description": "Preferred box; omit to search all."},
			"strategy": map[string]any{"type": "string", "enum": []string{"consecutive", "same_row"}},
		}, "count"),
	},
	{
		Name:        ToolGenerateStats,
		Description: "Occupancy statistics: per-box and overall rates plus tube counts per cell line.",
		Parameters:  obj(map[string]any{}),
	},
	{
		Name:        ToolGetRawEntries,
		Description: "Fetch full records, history included, by id.",
		Parameters: obj(map[string]any{
			"ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		}, "ids"),
	},
	{
		Name:        ToolManageStaged,
		Description: "Inspect or prune the staged plan: list items, remove one by index, or clear the queue. Approval itself happens outside this conversation.",
		Parameters: obj(map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"list", "remove", "clear"}},
			"index":  map[string]any{"type": "integer", "description": "Zero-based staged index, for remove."},
		}, "action"),
	},
	{
		Name:        ToolAddEntry,
		Description: "Add a new frozen-tube record.",
		Parameters: obj(map[string]any{
			"cell_line":  map[string]any{"type": "string"},
			"short_name": map[string]any{"type": "string"},
			"box":        map[string]any{"type": "integer"},
			"positions":  positionsProp,
			"frozen_at":  map[string]any{"type": "string", "description": "YYYY-MM-DD; defaults to today."},
			"note":       map[string]any{"type": "string"},
			"fields":     map[string]any{"type": "object", "description": "Custom schema fields."},
		}, "cell_line", "box", "positions"),
		Write: true,
	},
	{
		Name:        ToolEditEntry,
		Description: "Edit record metadata (cell line, short name, frozen date, note, custom fields). Positions and history are not editable here.",
		Parameters: obj(map[string]any{
			"id":         map[string]any{"type": "integer"},
			"cell_line":  map[string]any{"type": "string"},
			"short_name": map[string]any{"type": "string"},
			"frozen_at":  map[string]any{"type": "string"},
			"note":       map[string]any{"type": "string"},
			"fields":     map[string]any{"type": "object"},
		}, "id"),
		Write: true,
	},
	{
		Name:        ToolRecordEvent,
		Description: "Record one takeout/thaw/discard/move against a record. Omitting positions targets every tube the record still holds.",
		Parameters: obj(map[string]any{
			"record_id":   map[string]any{"type": "integer"},
			"action":      map[string]any{"type": "string", "description": "takeout, thaw, discard, move, or an alias like 取出."},
			"date":        map[string]any{"type": "string", "description": "YYYY-MM-DD; defaults to today."},
			"positions":   positionsProp,
			"note":        map[string]any{"type": "string"},
			"to_box":      map[string]any{"type": "integer", "description": "Move destination box."},
			"to_position": map[string]any{"type": "integer", "description": "Move destination position."},
		}, "record_id", "action"),
		Write: true,
	},
	{
		Name:        ToolBatchEvents,
		Description: "Record several events as one atomic batch. Any invalid entry, or two entries targeting the same slot, fails the whole batch.",
		Parameters: obj(map[string]any{
			"entries": map[string]any{
				"type": "array",
				"items": obj(map[string]any{
					"record_id":   map[string]any{"type": "integer"},
					"action":      map[string]any{"type": "string"},
					"date":        map[string]any{"type": "string"},
					"positions":   positionsProp,
					"note":        map[string]any{"type": "string"},
					"to_box":      map[string]any{"type": "integer"},
					"to_position": map[string]any{"type": "integer"},
				}, "record_id", "action"),
			},
		}, "entries"),
		Write: true,
	},
	{
		Name:        ToolRollback,
		Description: "Restore the document from a backup. Omit backup_path for the most recent one.",
		Parameters: obj(map[string]any{
			"backup_path": map[string]any{"type": "string"},
		}),
		Write: true,
	},
	{
		Name:        ToolManageBoxes,
		Description: "Change the number of boxes. Shrinking below an occupied box is rejected. Requires explicit human confirmation.",
		Parameters: obj(map[string]any{
			"box_count": map[string]any{"type": "integer"},
		}, "box_count"),
		Confirm: true,
		Alone:   true,
	},
	{
		Name:        ToolQuestion,
		Description: "Ask the human a clarifying question and wait for the answer. Must be the only tool call in its step.",
		Parameters: obj(map[string]any{
			"question": map[string]any{"type": "string"},
		}, "question"),
		Alone: true,
	},
}

var catalogByName = func() map[string]Definition {
	m := make(map[string]Definition, len(catalog))
	for _, def := range catalog {
		m[def.Name] = def
	}
	return m
}()

// Lookup returns a catalog entry by name.
func Lookup(name string) (Definition, bool) {
	def, ok := catalogByName[name]
	return def, ok
}

// Specs renders the catalog for the provider.
func Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(catalog))
	for _, def := range catalog {
		specs = append(specs, llm.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return specs
}

// Names lists every tool in catalog order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, def := range catalog {
		names = append(names, def.Name)
	}
	return names
}
