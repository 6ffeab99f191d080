package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/system.txt
var systemRaw string

// System returns the reasoning agent's system prompt.
// Safe to call concurrently; the embed is compile-time, and trimming is cheap.
func System() string {
	return strings.TrimSpace(systemRaw)
}
