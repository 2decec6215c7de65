package vlm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptInput carries everything one step shows the model.
type PromptInput struct {
	Goal            string
	SuccessCriteria []string
	FailureCriteria []string
	Keywords        []string
	TestData        json.RawMessage
	History         []string // last actions, oldest first
	Listing         string   // compact element listing, one element per line
	CurrentURL      string
}

const decisionContract = `Reply with EXACTLY one JSON object, no prose, no markdown:
{
  "action": "CLICK|FILL|PRESS|SELECT|SCROLL|NAVIGATE|WAIT|DONE",
  "element_id": "ref id from the element list, when the action targets an element",
  "value": "text to fill, key to press, option to select, or URL to navigate to",
  "reasoning": "one sentence",
  "confidence": 0.0,
  "is_goal_achieved": false,
  "goal_achievement_reason": "required when is_goal_achieved is true"
}`

// BuildGoalPrompt renders the per-step prompt for goal-directed runs.
func BuildGoalPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are driving a real web page through a browser to accomplish a goal.\n\n")
	fmt.Fprintf(&b, "GOAL: %s\n", in.Goal)
	writeList(&b, "SUCCESS CRITERIA", in.SuccessCriteria)
	writeList(&b, "FAILURE CRITERIA", in.FailureCriteria)
	writeList(&b, "KEYWORDS", in.Keywords)
	if len(in.TestData) > 0 {
		fmt.Fprintf(&b, "\nTEST DATA (use these values for inputs):\n%s\n", in.TestData)
	}
	if in.CurrentURL != "" {
		fmt.Fprintf(&b, "\nCURRENT URL: %s\n", in.CurrentURL)
	}
	writeList(&b, "LAST ACTIONS", in.History)
	b.WriteString("\nINTERACTIVE ELEMENTS (screenshot attached):\n")
	b.WriteString(in.Listing)
	b.WriteString("\n")
	b.WriteString(decisionContract)
	return b.String()
}

// BuildExploratoryPrompt renders the per-step prompt for exploratory runs:
// the model is asked for an untested interactive action instead of goal
// progress.
func BuildExploratoryPrompt(in PromptInput, tested []string) string {
	var b strings.Builder
	b.WriteString("You are exploring a web page to exercise its interactive surface and surface defects.\n")
	b.WriteString("Pick ONE interactive element that has NOT been tested yet and exercise it.\n")
	if in.Goal != "" {
		fmt.Fprintf(&b, "\nCONTEXT: %s\n", in.Goal)
	}
	writeList(&b, "ALREADY TESTED (do not repeat)", tested)
	if in.CurrentURL != "" {
		fmt.Fprintf(&b, "\nCURRENT URL: %s\n", in.CurrentURL)
	}
	writeList(&b, "LAST ACTIONS", in.History)
	b.WriteString("\nINTERACTIVE ELEMENTS (screenshot attached):\n")
	b.WriteString(in.Listing)
	b.WriteString("\nFor inputs, invent realistic test values. Set is_goal_achieved only when every listed element has been tested.\n")
	b.WriteString(decisionContract)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
