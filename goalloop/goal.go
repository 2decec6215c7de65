// Package goalloop drives a browser session toward a natural-language goal.
//
// Each step captures a snapshot and screenshot through the host, asks the
// vision model for one decision, executes it, and repeats until the model
// declares the goal achieved, the step budget runs out, or a stagnation
// detector fires. The loop is a pure host client: it owns no browser and
// addresses elements only by snapshot refs.
package goalloop

import "encoding/json"

// Goal is one run's objective.
type Goal struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	SuccessCriteria []string        `json:"success_criteria,omitempty"`
	FailureCriteria []string        `json:"failure_criteria,omitempty"`
	Keywords        []string        `json:"keywords,omitempty"`
	TestData        json.RawMessage `json:"test_data,omitempty"`
	StartURL        string          `json:"start_url"`
	MaxSteps        int             `json:"max_steps,omitempty"` // default 25

	// Exploratory switches the loop to coverage mode: untested elements
	// over goal progress.
	Exploratory bool `json:"exploratory,omitempty"`
}

// StepRecord is one executed step.
type StepRecord struct {
	Step       int     `json:"step"`
	Action     string  `json:"action"`
	ElementID  string  `json:"element_id,omitempty"`
	Value      string  `json:"value,omitempty"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	ReasonCode string  `json:"reason_code"`
	Effective  bool    `json:"effective"`
	URL        string  `json:"url"`
}

// Issue is a defect observed during an exploratory run.
type Issue struct {
	Severity string `json:"severity"` // error | warning
	Kind     string `json:"kind"`     // console_error | action_failure | page_error
	Detail   string `json:"detail"`
	Step     int    `json:"step,omitempty"`
}

// RunResult is the outcome of one goal run.
type RunResult struct {
	GoalID     string       `json:"goal_id"`
	Achieved   bool         `json:"achieved"`
	StopReason string       `json:"stop_reason"`
	Steps      []StepRecord `json:"steps"`
	Issues     []Issue      `json:"issues,omitempty"`
	FinalURL   string       `json:"final_url"`
}
