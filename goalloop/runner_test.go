package goalloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/gaia/vlm"
)

// fakeHost scripts host replies by action name and records every call.
type fakeHost struct {
	t       *testing.T
	calls   []string
	acts    []map[string]any
	handler func(action string, params map[string]any) (any, error)
}

func (f *fakeHost) Execute(_ context.Context, action string, params any) (json.RawMessage, error) {
	f.t.Helper()
	f.calls = append(f.calls, action)
	m, _ := params.(map[string]any)
	if action == "browser_act" {
		f.acts = append(f.acts, m)
	}
	out, err := f.handler(action, m)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		f.t.Fatalf("marshal fake reply: %v", err)
	}
	return raw, nil
}

// fakeDecider pops queued decisions; when exhausted it repeats the last one.
type fakeDecider struct {
	queue []*vlm.Decision
	next  func(step int) *vlm.Decision
	step  int
}

func (f *fakeDecider) Decide(context.Context, string, []byte) (*vlm.Decision, error) {
	f.step++
	if f.next != nil {
		return f.next(f.step), nil
	}
	if len(f.queue) == 0 {
		return &vlm.Decision{Action: "WAIT"}, nil
	}
	d := f.queue[0]
	if len(f.queue) > 1 {
		f.queue = f.queue[1:]
	}
	return d, nil
}

func snapReply(hash, listing string) map[string]any {
	return map[string]any{
		"snapshot_id": "s1:1:abcdef123456",
		"dom_hash":    hash,
		"current_url": "https://example.com/page",
		"snapshot":    listing,
	}
}

func okAct() map[string]any {
	return map[string]any{"success": true, "effective": true, "reason_code": "ok"}
}

func TestRun_GoalAchieved(t *testing.T) {
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			return snapReply("h1", `- button "Buy" [t0-f0-e1]`), nil
		}
		return okAct(), nil
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "CLICK", ElementID: "t0-f0-e1", Confidence: 0.9},
		{Action: "DONE", IsGoalAchieved: true, GoalAchievementReason: "order confirmed"},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1", Description: "buy the thing"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Achieved {
		t.Fatal("Achieved = false, want true")
	}
	if !strings.Contains(res.StopReason, "order confirmed") {
		t.Errorf("StopReason = %q, want achievement reason", res.StopReason)
	}
	if len(res.Steps) != 1 {
		t.Errorf("Steps = %d, want 1", len(res.Steps))
	}
	if res.FinalURL != "https://example.com/page" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}
}

func TestRun_RepeatedDecisionStops(t *testing.T) {
	// Hash varies so the frozen-DOM detector stays quiet.
	step := 0
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			step++
			return snapReply(fmt.Sprintf("h%d", step), `- button "Next" [t0-f0-e1]`), nil
		}
		return okAct(), nil
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "CLICK", ElementID: "t0-f0-e1"},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "repeated action") {
		t.Errorf("StopReason = %q, want repeated action", res.StopReason)
	}
	// The fifth identical decision stops before executing.
	if len(res.Steps) != 4 {
		t.Errorf("Steps = %d, want 4", len(res.Steps))
	}
}

func TestRun_DOMUnreachableStops(t *testing.T) {
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("browser gone")
	}}
	dec := &fakeDecider{}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "DOM unreachable") {
		t.Errorf("StopReason = %q, want DOM unreachable", res.StopReason)
	}
	if len(res.Steps) != 0 {
		t.Errorf("Steps = %d, want 0", len(res.Steps))
	}
	if got := len(host.calls); got != 3 {
		t.Errorf("snapshot attempts = %d, want 3", got)
	}
}

func TestRun_FrozenDOMStops(t *testing.T) {
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			return snapReply("frozen", `- button "A" [t0-f0-e1]`), nil
		}
		return okAct(), nil
	}}
	// Distinct element per step so the repeated-decision detector stays quiet.
	dec := &fakeDecider{next: func(step int) *vlm.Decision {
		return &vlm.Decision{Action: "CLICK", ElementID: fmt.Sprintf("t0-f0-e%d", step)}
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "screen unchanged") {
		t.Errorf("StopReason = %q, want screen unchanged", res.StopReason)
	}
	if len(res.Steps) != 9 {
		t.Errorf("Steps = %d, want 9", len(res.Steps))
	}
}

func TestRun_LoginGateWithoutCredentialsStops(t *testing.T) {
	listing := "- textbox \"Email\" [t0-f0-e1]\n- textbox \"Password\" [t0-f0-e2]\n- button \"Sign in\" [t0-f0-e3]"
	step := 0
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			step++
			return snapReply(fmt.Sprintf("h%d", step), listing), nil
		}
		return okAct(), nil
	}}
	dec := &fakeDecider{}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "login gate") {
		t.Errorf("StopReason = %q, want login gate", res.StopReason)
	}
	// The gate stops before any decision is requested.
	if len(res.Steps) != 0 {
		t.Errorf("Steps = %d, want 0", len(res.Steps))
	}
}

func TestRun_LoginGateWithCredentialsProceeds(t *testing.T) {
	listing := "- textbox \"Password\" [t0-f0-e2]\n- button \"Login\" [t0-f0-e3]"
	step := 0
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			step++
			return snapReply(fmt.Sprintf("h%d", step), listing), nil
		}
		return okAct(), nil
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "DONE", IsGoalAchieved: true, GoalAchievementReason: "logged in"},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	goal := Goal{ID: "g1", TestData: json.RawMessage(`{"password":"hunter2"}`)}
	res, err := r.Run(context.Background(), goal)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Achieved {
		t.Errorf("Achieved = false, StopReason = %q", res.StopReason)
	}
}

func TestRun_DoneWithoutAchievementStops(t *testing.T) {
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		return snapReply("h1", `- button "X" [t0-f0-e1]`), nil
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "DONE", Reasoning: "nothing left to try"},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Achieved {
		t.Error("Achieved = true, want false")
	}
	if !strings.Contains(res.StopReason, "without goal achievement") {
		t.Errorf("StopReason = %q", res.StopReason)
	}
}

func TestRun_StaleRecoveryFailuresStop(t *testing.T) {
	step := 0
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			step++
			return snapReply(fmt.Sprintf("h%d", step), `- button "A" [t0-f0-e1]`), nil
		}
		return map[string]any{"success": false, "effective": false, "reason_code": "stale_snapshot"}, nil
	}}
	dec := &fakeDecider{next: func(step int) *vlm.Decision {
		return &vlm.Decision{Action: "CLICK", ElementID: fmt.Sprintf("t0-f0-e%d", step)}
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "recovery failed") {
		t.Errorf("StopReason = %q, want recovery failed", res.StopReason)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want 3", len(res.Steps))
	}
}

func TestRun_ExploratoryCanonicalFillAndIssues(t *testing.T) {
	listing := `- textbox "Email address" [t0-f0-e1]` + "\n" + `- button "Subscribe" [t0-f0-e2]`
	step := 0
	host := &fakeHost{t: t, handler: func(action string, params map[string]any) (any, error) {
		switch action {
		case "browser_snapshot":
			step++
			return snapReply(fmt.Sprintf("h%d", step), listing), nil
		case "browser_errors_get":
			return map[string]any{"entries": []map[string]any{
				{"message": "TypeError: x is undefined"},
			}}, nil
		default:
			if params["ref_id"] == "t0-f0-e2" {
				return map[string]any{"success": false, "effective": false, "reason_code": "not_actionable"}, nil
			}
			return okAct(), nil
		}
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "FILL", ElementID: "t0-f0-e1"}, // no value: canonical fill
		{Action: "CLICK", ElementID: "t0-f0-e2"},
		{Action: "DONE", IsGoalAchieved: true, GoalAchievementReason: "page explored"},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1", Exploratory: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(host.acts) < 1 {
		t.Fatal("no browser_act calls recorded")
	}
	if got := host.acts[0]["value"]; got != "test.explorer@example.com" {
		t.Errorf("fill value = %v, want canonical email", got)
	}

	var kinds []string
	for _, iss := range res.Issues {
		kinds = append(kinds, iss.Kind)
	}
	if len(res.Issues) != 2 {
		t.Fatalf("Issues = %v, want action_failure + page_error", kinds)
	}
	if res.Issues[0].Kind != "action_failure" || res.Issues[1].Kind != "page_error" {
		t.Errorf("issue kinds = %v", kinds)
	}
	if res.Issues[1].Detail != "TypeError: x is undefined" {
		t.Errorf("page_error detail = %q", res.Issues[1].Detail)
	}
}

func TestRun_WaitAndNavigateMapping(t *testing.T) {
	step := 0
	var waits, gotos int
	host := &fakeHost{t: t, handler: func(action string, params map[string]any) (any, error) {
		switch action {
		case "browser_snapshot":
			step++
			return snapReply(fmt.Sprintf("h%d", step), "- generic"), nil
		case "browser_wait":
			waits++
			return map[string]any{"reason_code": "ok", "success": true}, nil
		default:
			if params["kind"] == "goto" {
				gotos++
				if params["url"] != "https://example.com/next" {
					t.Errorf("goto url = %v", params["url"])
				}
			}
			return okAct(), nil
		}
	}}
	dec := &fakeDecider{queue: []*vlm.Decision{
		{Action: "WAIT"},
		{Action: "NAVIGATE", Value: "https://example.com/next"},
		{Action: "DONE", IsGoalAchieved: true},
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	if _, err := r.Run(context.Background(), Goal{ID: "g1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if waits != 1 || gotos != 1 {
		t.Errorf("waits = %d gotos = %d, want 1 each", waits, gotos)
	}
}

func TestRun_StepBudgetExhausted(t *testing.T) {
	step := 0
	host := &fakeHost{t: t, handler: func(action string, _ map[string]any) (any, error) {
		if action == "browser_snapshot" {
			step++
			return snapReply(fmt.Sprintf("h%d", step), "- generic"), nil
		}
		return okAct(), nil
	}}
	dec := &fakeDecider{next: func(step int) *vlm.Decision {
		return &vlm.Decision{Action: "CLICK", ElementID: fmt.Sprintf("t0-f0-e%d", step)}
	}}

	r := &Runner{Host: host, Decider: dec, SessionID: "s1"}
	res, err := r.Run(context.Background(), Goal{ID: "g1", MaxSteps: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.StopReason, "step budget (3) exhausted") {
		t.Errorf("StopReason = %q", res.StopReason)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want 3", len(res.Steps))
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	host := &fakeHost{t: t, handler: func(string, map[string]any) (any, error) {
		t.Fatal("host called after cancel")
		return nil, nil
	}}
	r := &Runner{Host: host, Decider: &fakeDecider{}, SessionID: "s1"}
	res, err := r.Run(ctx, Goal{ID: "g1"})
	if err == nil {
		t.Fatal("Run: want context error")
	}
	if res.StopReason != "context canceled" {
		t.Errorf("StopReason = %q", res.StopReason)
	}
}
