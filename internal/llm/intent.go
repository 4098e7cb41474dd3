package llm

import (
	"encoding/json"
	"strings"
)

// Intent is the manager's classification of a user message.
type Intent string

const (
	IntentQuery   Intent = "QUERY"
	IntentCoding  Intent = "CODING"
	IntentGeneral Intent = "GENERAL"
)

// ParseIntent extracts {"intent": ...} from model output that may be bare
// JSON, fenced JSON or JSON surrounded by chatter. Anything unreadable is
// IntentQuery.
func ParseIntent(raw string) Intent {
	s := strings.TrimSpace(raw)
	if _, after, ok := strings.Cut(s, "```json"); ok {
		s, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(s, "```"); ok {
		s, _, _ = strings.Cut(after, "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return IntentQuery
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return IntentQuery
	}
	switch in := Intent(strings.ToUpper(strings.TrimSpace(out.Intent))); in {
	case IntentQuery, IntentCoding, IntentGeneral:
		return in
	default:
		return IntentQuery
	}
}
