package vlm

import (
	"encoding/json"
	"strings"
)

// Decision is the model's structured reply for one step.
type Decision struct {
	Action                string  `json:"action"`
	ElementID             string  `json:"element_id,omitempty"`
	Value                 string  `json:"value,omitempty"`
	Reasoning             string  `json:"reasoning"`
	Confidence            float64 `json:"confidence"`
	IsGoalAchieved        bool    `json:"is_goal_achieved"`
	GoalAchievementReason string  `json:"goal_achievement_reason,omitempty"`
}

// Signature normalizes a decision for stagnation comparison: the same
// action on the same element with the same value is the same move.
func (d *Decision) Signature() string {
	return strings.ToUpper(d.Action) + "|" + d.ElementID + "|" + d.Value
}

// ParseDecision parses the model's reply as strict JSON. Replies wrapped in
// markdown fences or surrounded by prose are tolerated by extracting the
// first top-level object; anything unparsable synthesizes a WAIT decision
// with confidence 0 and the diagnostic in Reasoning.
func ParseDecision(raw string) *Decision {
	text := stripFences(raw)
	obj := extractObject(text)
	if obj == "" {
		return waitFallback("no JSON object in model reply")
	}

	var d Decision
	if err := json.Unmarshal([]byte(obj), &d); err != nil {
		return waitFallback("malformed decision JSON: " + err.Error())
	}
	if d.Action == "" {
		return waitFallback("decision missing action")
	}
	d.Action = strings.ToUpper(strings.TrimSpace(d.Action))
	return &d
}

func waitFallback(diag string) *Decision {
	return &Decision{
		Action:     "WAIT",
		Reasoning:  "decision parse failure: " + diag,
		Confidence: 0,
	}
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced top-level {...} in s, respecting
// strings and escapes.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
