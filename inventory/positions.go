package inventory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cryobank/contract"
)

// ParsePositions parses "7", "1,2,3" or an inclusive ascending range "30-32"
// into a sorted set of positions, bounds-checked against the layout.
func ParsePositions(text string, layout BoxLayout) ([]int, error) {
	var positions []int
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid position range %q", contract.ErrValidation, part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("%w: invalid position range %q", contract.ErrValidation, part)
			}
			if end < start {
				return nil, fmt.Errorf("%w: range end must be >= start: %q", contract.ErrValidation, part)
			}
			for p := start; p <= end; p++ {
				positions = append(positions, p)
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid position %q (example: '1,2,3' or '1-3')", contract.ErrValidation, part)
		}
		positions = append(positions, p)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: no positions given", contract.ErrValidation)
	}

	slots := layout.Slots()
	seen := make(map[int]struct{}, len(positions))
	out := positions[:0]
	for _, p := range positions {
		if p < 1 || p > slots {
			return nil, fmt.Errorf("%w: position %d out of range (1-%d)", contract.ErrValidation, p, slots)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}

// CoercePositions accepts the loosely-typed position payloads tool callers
// send: a number, a numeric string, a range string, or a list of either.
func CoercePositions(value any, layout BoxLayout) ([]int, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("%w: no positions given", contract.ErrValidation)
	case int:
		return ParsePositions(strconv.Itoa(v), layout)
	case int64:
		return ParsePositions(strconv.FormatInt(v, 10), layout)
	case float64:
		if v != float64(int(v)) {
			return nil, fmt.Errorf("%w: position must be an integer, got %v", contract.ErrValidation, v)
		}
		return ParsePositions(strconv.Itoa(int(v)), layout)
	case string:
		return ParsePositions(v, layout)
	case []int:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = strconv.Itoa(p)
		}
		return ParsePositions(strings.Join(parts, ","), layout)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch p := item.(type) {
			case int:
				parts = append(parts, strconv.Itoa(p))
			case float64:
				if p != float64(int(p)) {
					return nil, fmt.Errorf("%w: position must be an integer, got %v", contract.ErrValidation, p)
				}
				parts = append(parts, strconv.Itoa(int(p)))
			case string:
				parts = append(parts, p)
			default:
				return nil, fmt.Errorf("%w: unsupported position element %T", contract.ErrValidation, item)
			}
		}
		return ParsePositions(strings.Join(parts, ","), layout)
	default:
		return nil, fmt.Errorf("%w: unsupported positions payload %T", contract.ErrValidation, value)
	}
}

// FormatPositions renders a position set in the compact comma form.
func FormatPositions(positions []int) string {
	if len(positions) == 0 {
		return "-"
	}
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
