package core

import "time"

// DetailLevel is the 0-4 dial controlling how long sources are awaited and
// how much gathered context enters the prompt.
type DetailLevel int

// Clamp bounds the level into the supported 0-4 range.
func (d DetailLevel) Clamp() DetailLevel {
	if d < 0 {
		return 0
	}
	if d > 4 {
		return 4
	}
	return d
}

// baseBudgets maps a source class to its budget at detail level 0. Higher
// levels scale linearly; level 4 waits three times as long as level 0.
var baseBudgets = map[SourceKind]time.Duration{
	KindWebSearch:    10 * time.Second,
	KindDocument:     15 * time.Second,
	KindLink:         12 * time.Second,
	KindContinuation: 5 * time.Second,
}

// SourceBudget returns the time budget for one source class at the given
// detail level.
func SourceBudget(kind SourceKind, level DetailLevel) time.Duration {
	base, ok := baseBudgets[kind]
	if !ok {
		base = 10 * time.Second
	}
	l := time.Duration(level.Clamp())
	return base + base*l/2
}

// PromptWindow returns the total prompt byte budget at the given detail
// level. The truncation ladder divides this among context components.
func PromptWindow(level DetailLevel) int {
	return 24_000 + 16_000*int(level.Clamp())
}
