// Package action executes one element action against a live page and
// decides, from before/after evidence, whether it was effective (caused a
// meaningful state change) rather than merely transported (did not throw).
//
// The executor owns the whole inner loop: snapshot resolution, stale-ref
// recovery, tab/frame scoping, locator resolution through the stamped
// dom-ref attribute, the probe schedule, scroll probes, the wall-clock
// budget, and the closed failure taxonomy.
package action

import (
	"fmt"

	"github.com/hazyhaar/gaia/reason"
)

// Kind is one of the closed set of element actions.
type Kind string

const (
	KindClick          Kind = "click"
	KindFill           Kind = "fill"
	KindPress          Kind = "press"
	KindHover          Kind = "hover"
	KindScroll         Kind = "scroll"
	KindSelect         Kind = "select"
	KindDragAndDrop    Kind = "dragAndDrop"
	KindDragSlider     Kind = "dragSlider"
	KindScrollIntoView Kind = "scrollIntoView"
)

var elementKinds = map[Kind]bool{
	KindClick: true, KindFill: true, KindPress: true, KindHover: true,
	KindScroll: true, KindSelect: true, KindDragAndDrop: true,
	KindDragSlider: true, KindScrollIntoView: true,
}

// ParseKind validates an element action kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !elementKinds[k] {
		return "", fmt.Errorf("action: unknown element kind %q", s)
	}
	return k, nil
}

// Options carries the kind-specific extras. Click follows the Playwright
// conventions for button, modifiers, and double click.
type Options struct {
	Button      string   `json:"button,omitempty"`
	Modifiers   []string `json:"modifiers,omitempty"`
	DoubleClick bool     `json:"double_click,omitempty"`
	Screenshot  bool     `json:"screenshot,omitempty"`
	TimeoutMS   int      `json:"timeout_ms,omitempty"`
}

// Request is one element action to perform.
type Request struct {
	SnapshotID string  `json:"snapshot_id"`
	RefID      string  `json:"ref_id"`
	Kind       Kind    `json:"kind"`
	Value      any     `json:"value,omitempty"`
	Options    Options `json:"options"`
	Verify     bool    `json:"verify"`

	// SelectorHint is decoded and ignored; reserved for future use.
	SelectorHint string `json:"selector_hint,omitempty"`
}

// StateChange is the per-probe change-flag set reported with every verified
// action. evidence_changed aggregates the page-evidence flags.
type StateChange struct {
	URLChanged              bool `json:"url_changed"`
	DOMChanged              bool `json:"dom_changed"`
	TargetVisibilityChanged bool `json:"target_visibility_changed"`
	TargetValueChanged      bool `json:"target_value_changed"`
	TargetValueMatches      bool `json:"target_value_matches"`
	TargetFocusChanged      bool `json:"target_focus_changed"`
	FocusChanged            bool `json:"focus_changed"`
	CounterChanged          bool `json:"counter_changed"`
	NumberTokensChanged     bool `json:"number_tokens_changed"`
	StatusTextChanged       bool `json:"status_text_changed"`
	ListCountChanged        bool `json:"list_count_changed"`
	InteractiveCountChanged bool `json:"interactive_count_changed"`
	AuthStateChanged        bool `json:"auth_state_changed"`
	TextDigestChanged       bool `json:"text_digest_changed"`
	EvidenceChanged         bool `json:"evidence_changed"`

	ProbeWaitMS []int  `json:"probe_wait_ms,omitempty"`
	ProbeScroll string `json:"probe_scroll,omitempty"`
}

// Any reports whether at least one change flag is set.
func (sc *StateChange) Any() bool {
	return sc.URLChanged || sc.DOMChanged || sc.TargetVisibilityChanged ||
		sc.TargetValueChanged || sc.TargetValueMatches || sc.TargetFocusChanged ||
		sc.FocusChanged || sc.EvidenceChanged
}

// Result is the structured outcome of one action.
type Result struct {
	Success        bool        `json:"success"`
	Effective      bool        `json:"effective"`
	ReasonCode     reason.Code `json:"reason_code"`
	Reason         string      `json:"reason"`
	SnapshotIDUsed string      `json:"snapshot_id_used"`
	RefIDUsed      string      `json:"ref_id_used"`
	StaleRecovered bool        `json:"stale_recovered"`
	RetryPath      string      `json:"retry_path"`
	AttemptCount   int         `json:"attempt_count"`
	AttemptLogs    []string    `json:"attempt_logs"`
	StateChange    StateChange `json:"state_change"`
	Screenshot     string      `json:"screenshot,omitempty"`
	CurrentURL     string      `json:"current_url"`
	TabID          string      `json:"tab_id,omitempty"`

	// EvaluateTimedOut marks an action_timeout that originated inside a
	// page evaluate. The session treats the browser connection as poisoned
	// and resets it.
	EvaluateTimedOut bool `json:"-"`
}
