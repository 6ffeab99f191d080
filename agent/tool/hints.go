package tool

import (
	"encoding/json"
	"fmt"
)

// hintFor renders a corrective hint for a rejected call: the expected
// argument schema plus a worked example where one helps.
func hintFor(def Definition) string {
	schema, err := json.Marshal(def.Parameters)
	if err != nil {
		return ""
	}
	hint := fmt.Sprintf("expected arguments for %s: %s", def.Name, schema)
	if example, ok := examples[def.Name]; ok {
		hint += "; example: " + example
	}
	return hint
}

var examples = map[string]string{
	ToolAddEntry:    `{"cell_line":"HEK293T","box":2,"positions":"30-32","frozen_at":"2025-06-01"}`,
	ToolRecordEvent: `{"record_id":14,"action":"takeout","positions":"5","date":"2025-06-01"}`,
	ToolBatchEvents: `{"entries":[{"record_id":14,"action":"takeout","positions":"5"},{"record_id":9,"action":"thaw","positions":"12"}]}`,
	ToolManageBoxes: `{"box_count":6}`,
	ToolGetRawEntries: `{"ids":[14,9]}`,
}
