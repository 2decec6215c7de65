// CLAUDE:SUMMARY The per-step loop: snapshot, decide, act, detectors; exploratory mode with canonical fills and issue collection.
package goalloop

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/gaia/reason"
	"github.com/hazyhaar/gaia/vlm"
)

// Decider produces one decision per step. Satisfied by *vlm.Decider.
type Decider interface {
	Decide(ctx context.Context, prompt string, screenshotPNG []byte) (*vlm.Decision, error)
}

// Runner executes goals against a host session.
type Runner struct {
	Host      HostClient
	Decider   Decider
	SessionID string

	// StepDelay paces steps; zero means no pause. Tests leave it zero.
	StepDelay time.Duration

	Logger *slog.Logger
}

const defaultMaxSteps = 25

type snapshotReply struct {
	SnapshotID string `json:"snapshot_id"`
	DomHash    string `json:"dom_hash"`
	CurrentURL string `json:"current_url"`
	Snapshot   string `json:"snapshot"`
	Screenshot string `json:"screenshot"`
}

type actReply struct {
	Success        bool   `json:"success"`
	Effective      bool   `json:"effective"`
	ReasonCode     string `json:"reason_code"`
	Reason         string `json:"reason"`
	StaleRecovered bool   `json:"stale_recovered"`
	CurrentURL     string `json:"current_url"`
}

// Run drives one goal to completion or a stop condition.
func (r *Runner) Run(ctx context.Context, goal Goal) (*RunResult, error) {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	maxSteps := goal.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	result := &RunResult{GoalID: goal.ID}
	var det detectors
	var history []string
	tested := map[string]bool{}
	visited := map[string]bool{}

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			result.StopReason = "context canceled"
			return result, err
		}

		snap, err := r.snapshot(ctx, goal, step)
		if err != nil {
			r.Logger.Warn("goalloop: snapshot failed", "step", step, "error", err)
			if why, stop := det.checkNoDOM(); stop {
				result.StopReason = why
				return r.finish(ctx, goal, result), nil
			}
			r.pause(ctx)
			continue
		}
		det.domOK()
		result.FinalURL = snap.CurrentURL
		visited[baseURL(snap.CurrentURL)] = true

		if why, stop := det.checkDOM(snap.DomHash); stop {
			result.StopReason = why
			return r.finish(ctx, goal, result), nil
		}
		if why, stop := det.checkLoginGate(snap.Snapshot, goal.TestData); stop {
			result.StopReason = why
			return r.finish(ctx, goal, result), nil
		} else if det.loginGateStreak > 0 {
			// An auth gate with no credentials to pass it: deciding is
			// pointless, so wait for the gate to clear or the streak to stop
			// the run.
			r.Logger.Info("goalloop: login gate without credentials", "step", step)
			r.pause(ctx)
			continue
		}

		decision := r.decide(ctx, goal, snap, history, tested)

		if decision.IsGoalAchieved {
			result.Achieved = true
			result.StopReason = "goal achieved: " + decision.GoalAchievementReason
			return r.finish(ctx, goal, result), nil
		}
		if decision.Action == "DONE" {
			result.StopReason = "model declared done without goal achievement"
			return r.finish(ctx, goal, result), nil
		}
		if why, stop := det.checkDecision(decision.Signature()); stop {
			result.StopReason = why
			return r.finish(ctx, goal, result), nil
		}

		rec := r.execute(ctx, goal, snap, decision, step, tested)
		result.Steps = append(result.Steps, rec)
		history = appendHistory(history, rec)

		if goal.Exploratory && rec.ReasonCode != "ok" {
			result.Issues = append(result.Issues, Issue{
				Severity: "warning",
				Kind:     "action_failure",
				Detail:   fmt.Sprintf("%s on %s: %s", rec.Action, rec.ElementID, rec.ReasonCode),
				Step:     step,
			})
		}
		if why, stop := det.checkRecovery(rec.ReasonCode == "stale_snapshot"); stop {
			result.StopReason = why
			return r.finish(ctx, goal, result), nil
		}

		r.pause(ctx)
	}

	result.StopReason = fmt.Sprintf("step budget (%d) exhausted", maxSteps)
	return r.finish(ctx, goal, result), nil
}

// finish runs end-of-run collection before the result goes back.
func (r *Runner) finish(ctx context.Context, goal Goal, result *RunResult) *RunResult {
	if goal.Exploratory {
		r.collectPageIssues(ctx, result)
	}
	return result
}

// snapshot captures the step's view. The start URL applies only to step 1;
// afterwards the loop follows wherever the page went.
func (r *Runner) snapshot(ctx context.Context, goal Goal, step int) (*snapshotReply, error) {
	params := map[string]any{
		"session_id": r.SessionID,
		"format":     "ai",
		"limit":      50,
	}
	if step == 1 && goal.StartURL != "" {
		params["url"] = goal.StartURL
	}
	raw, err := r.Host.Execute(ctx, "browser_snapshot", params)
	if err != nil {
		return nil, err
	}
	var reply snapshotReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("goalloop: decode snapshot reply: %w", err)
	}
	if reply.SnapshotID == "" {
		return nil, fmt.Errorf("goalloop: snapshot reply missing snapshot_id")
	}
	return &reply, nil
}

func (r *Runner) decide(ctx context.Context, goal Goal, snap *snapshotReply, history []string, tested map[string]bool) *vlm.Decision {
	in := vlm.PromptInput{
		Goal:            goal.Description,
		SuccessCriteria: goal.SuccessCriteria,
		FailureCriteria: goal.FailureCriteria,
		Keywords:        goal.Keywords,
		TestData:        goal.TestData,
		History:         lastN(history, 5),
		Listing:         snap.Snapshot,
		CurrentURL:      snap.CurrentURL,
	}

	var prompt string
	if goal.Exploratory {
		prompt = vlm.BuildExploratoryPrompt(in, sortedKeys(tested))
	} else {
		prompt = vlm.BuildGoalPrompt(in)
	}

	var shot []byte
	if snap.Screenshot != "" {
		if decoded, err := base64.StdEncoding.DecodeString(snap.Screenshot); err == nil {
			shot = decoded
		}
	}

	decision, err := r.Decider.Decide(ctx, prompt, shot)
	if err != nil {
		r.Logger.Warn("goalloop: decide failed", "error", err)
		return &vlm.Decision{Action: "WAIT", Reasoning: "decider error: " + err.Error()}
	}
	return decision
}

// execute maps one decision onto a host call and records the outcome.
func (r *Runner) execute(ctx context.Context, goal Goal, snap *snapshotReply, d *vlm.Decision, step int, tested map[string]bool) StepRecord {
	rec := StepRecord{
		Step:       step,
		Action:     d.Action,
		ElementID:  d.ElementID,
		Value:      d.Value,
		Reasoning:  d.Reasoning,
		Confidence: d.Confidence,
		URL:        snap.CurrentURL,
	}

	var (
		actionName string
		params     map[string]any
	)
	switch d.Action {
	case "WAIT":
		actionName = "browser_wait"
		params = map[string]any{"session_id": r.SessionID, "time_ms": 1500}

	case "NAVIGATE":
		actionName = "browser_act"
		params = map[string]any{"session_id": r.SessionID, "kind": "goto", "url": d.Value}

	case "SCROLL":
		if d.ElementID == "" {
			actionName = "browser_act"
			params = map[string]any{
				"session_id": r.SessionID, "kind": "evaluate",
				"js": `() => window.scrollBy(0, window.innerHeight * 0.8)`,
			}
			break
		}
		fallthrough

	default: // element kinds
		kind := strings.ToLower(d.Action)
		if kind == "fill" && goal.Exploratory && d.Value == "" {
			rec.Value = CanonicalValue(listingLine(snap.Snapshot, d.ElementID))
		}
		actionName = "browser_act"
		params = map[string]any{
			"session_id":  r.SessionID,
			"snapshot_id": snap.SnapshotID,
			"ref_id":      d.ElementID,
			"kind":        kind,
		}
		if v := rec.Value; v != "" {
			params["value"] = v
		}
		tested[d.ElementID] = true
	}

	raw, err := r.Host.Execute(ctx, actionName, params)
	if err != nil {
		rec.ReasonCode = errorReasonCode(err)
		return rec
	}
	var reply actReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		rec.ReasonCode = "unknown_error"
		return rec
	}
	rec.ReasonCode = reply.ReasonCode
	rec.Effective = reply.Effective
	if reply.CurrentURL != "" {
		rec.URL = reply.CurrentURL
	}
	return rec
}

// collectPageIssues appends console and page errors observed during an
// exploratory run.
func (r *Runner) collectPageIssues(ctx context.Context, result *RunResult) {
	raw, err := r.Host.Execute(ctx, "browser_errors_get",
		map[string]any{"session_id": r.SessionID, "limit": 50})
	if err != nil {
		return
	}
	var reply struct {
		Entries []struct {
			Message string `json:"message"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return
	}
	for _, e := range reply.Entries {
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Kind:     "page_error",
			Detail:   e.Message,
		})
	}
}

func (r *Runner) pause(ctx context.Context) {
	if r.StepDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(r.StepDelay):
	}
}

func appendHistory(history []string, rec StepRecord) []string {
	entry := rec.Action
	if rec.ElementID != "" {
		entry += " " + rec.ElementID
	}
	if rec.Value != "" {
		entry += " " + clipString(rec.Value, 40)
	}
	entry += " -> " + rec.ReasonCode
	return append(history, entry)
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// listingLine returns the listing line for a ref id, used as the label
// source for canonical fill values.
func listingLine(listing, refID string) string {
	marker := "[" + refID + "]"
	for _, line := range strings.Split(listing, "\n") {
		if strings.Contains(line, marker) {
			return line
		}
	}
	return ""
}

// baseURL reduces a URL to scheme+host+path for the visited set.
func baseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func errorReasonCode(err error) string {
	return string(reason.CodeOf(err))
}

func clipString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
