package conversation

import "time"

// Memory is the typed view of the "memory" field. On disk the field is a
// plain map so partial updates (a lastUpdated bump from the persistence path
// while the main path appends) compose through the merge policy instead of
// clobbering each other.
type Memory struct {
	Title          string
	LastUpdated    time.Time
	RunningSummary []string
	Suggestions    []string
	TitleForceSet  bool
}

const (
	memKeyTitle         = "title"
	memKeyLastUpdated   = "last_updated"
	memKeySummary       = "running_summary"
	memKeySuggestions   = "suggestions"
	memKeyTitleForceSet = "title_force_set"
)

// toMap renders the memory for storage.
func (m Memory) toMap() map[string]any {
	return map[string]any{
		memKeyTitle:         m.Title,
		memKeyLastUpdated:   m.LastUpdated,
		memKeySummary:       m.RunningSummary,
		memKeySuggestions:   m.Suggestions,
		memKeyTitleForceSet: m.TitleForceSet,
	}
}

// memoryFromValue rebuilds the typed view from a stored value. The exact
// representation yields concrete time.Time/[]string values; the JSON fast
// path yields strings and []any, both are accepted.
func memoryFromValue(v any) Memory {
	m := Memory{}
	raw, ok := v.(map[string]any)
	if !ok {
		return m
	}
	if t, ok := raw[memKeyTitle].(string); ok {
		m.Title = t
	}
	switch lu := raw[memKeyLastUpdated].(type) {
	case time.Time:
		m.LastUpdated = lu
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, lu); err == nil {
			m.LastUpdated = parsed
		}
	}
	switch rs := raw[memKeySummary].(type) {
	case []string:
		m.RunningSummary = append([]string(nil), rs...)
	case []any:
		for _, e := range rs {
			if s, ok := e.(string); ok {
				m.RunningSummary = append(m.RunningSummary, s)
			}
		}
	}
	switch sg := raw[memKeySuggestions].(type) {
	case []string:
		m.Suggestions = append([]string(nil), sg...)
	case []any:
		for _, e := range sg {
			if s, ok := e.(string); ok {
				m.Suggestions = append(m.Suggestions, s)
			}
		}
	}
	if f, ok := raw[memKeyTitleForceSet].(bool); ok {
		m.TitleForceSet = f
	}
	return m
}
