package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"cryobank/contract"
	"cryobank/inventory"
)

// validateArgs checks presence of required fields and shallow types against
// the definition's schema. It reports every problem at once.
func validateArgs(def Definition, args map[string]any) []string {
	var problems []string
	required, _ := def.Parameters["required"].([]string)
	for _, field := range required {
		if v, ok := args[field]; !ok || v == nil || v == "" {
			problems = append(problems, fmt.Sprintf("%s is required", field))
		}
	}
	props, _ := def.Parameters["properties"].(map[string]any)
	for field, value := range args {
		spec, known := props[field].(map[string]any)
		if !known {
			problems = append(problems, fmt.Sprintf("unknown argument %q", field))
			continue
		}
		if value == nil {
			continue
		}
		wantType, _ := spec["type"].(string)
		if msg := typeProblem(field, wantType, value); msg != "" {
			problems = append(problems, msg)
		}
	}
	return problems
}

func typeProblem(field, wantType string, value any) string {
	switch wantType {
	case "integer":
		if _, ok := asInt(value); !ok {
			return fmt.Sprintf("%s must be an integer, got %T", field, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean, got %T", field, value)
		}
	case "string":
		switch value.(type) {
		case string:
		case float64, int, int64, []any, []int:
			// Providers send numbers or arrays where the position fields
			// expect loose text; coercion handles those shapes.
		default:
			return fmt.Sprintf("%s must be a string, got %T", field, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			if _, s := value.(string); !s {
				return fmt.Sprintf("%s must be an array, got %T", field, value)
			}
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("%s must be an object, got %T", field, value)
		}
	}
	return ""
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// normalizePositions rewrites a loose positions argument ("30-32", "1,2",
// 12, [1,2]) into a canonical []int in place.
func normalizePositions(args map[string]any, field string, layout inventory.BoxLayout) error {
	raw, ok := args[field]
	if !ok || raw == nil {
		return nil
	}
	positions, err := inventory.CoercePositions(raw, layout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", contract.ErrValidation, field, err)
	}
	args[field] = positions
	return nil
}

// decodeArgs round-trips a validated argument map into a typed request.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: arguments not serializable: %v", contract.ErrDispatch, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: arguments do not fit %T: %v", contract.ErrDispatch, out, err)
	}
	return nil
}
