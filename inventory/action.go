package inventory

import "strings"

// Action is the canonical event vocabulary. Aliases (bilingual labels from
// the legacy data files) are resolved once at the boundary; the pipeline
// never compares raw strings.
type Action string

const (
	ActionTakeout Action = "takeout"
	ActionThaw    Action = "thaw"
	ActionDiscard Action = "discard"
	ActionMove    Action = "move"
)

var actionAliases = map[string]Action{
	"takeout":  ActionTakeout,
	"take-out": ActionTakeout,
	"take_out": ActionTakeout,
	"取出":       ActionTakeout,
	"thaw":     ActionThaw,
	"recover":  ActionThaw,
	"复苏":       ActionThaw,
	"discard":  ActionDiscard,
	"扔掉":       ActionDiscard,
	"丢弃":       ActionDiscard,
	"move":     ActionMove,
	"移动":       ActionMove,
	"整理":       ActionMove,
}

// NormalizeAction resolves an alias to its canonical action.
// Returns "" for unrecognized input.
func NormalizeAction(raw string) Action {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	if action, ok := actionAliases[strings.ToLower(text)]; ok {
		return action
	}
	if action, ok := actionAliases[text]; ok {
		return action
	}
	return ""
}

// Terminal reports whether the action consumes positions for good.
// Move transfers activity and thaw is recorded history only.
func (a Action) Terminal() bool {
	return a == ActionTakeout || a == ActionDiscard
}

func (a Action) Valid() bool {
	switch a {
	case ActionTakeout, ActionThaw, ActionDiscard, ActionMove:
		return true
	}
	return false
}
