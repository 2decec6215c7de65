// CLAUDE:SUMMARY browser_act entry: selector prohibition, element acts through the executor, page-level kinds, poisoned-connection reset.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/gaia/host/internal/action"
	"github.com/hazyhaar/gaia/host/internal/browser"
	"github.com/hazyhaar/gaia/observability"
	"github.com/hazyhaar/gaia/reason"
)

// actParams is the browser_act request body. kind and action are synonyms;
// action wins when both are set.
type actParams struct {
	SessionID  string `json:"session_id"`
	SnapshotID string `json:"snapshot_id"`
	RefID      string `json:"ref_id"`

	Kind   string `json:"kind"`
	Action string `json:"action"`

	Value   any            `json:"value,omitempty"`
	Options action.Options `json:"options"`
	Verify  *bool          `json:"verify,omitempty"` // default true

	// URL serves the goto kind; JS serves evaluate.
	URL string `json:"url,omitempty"`
	JS  string `json:"js,omitempty"`

	// Selector is forbidden; its presence alone rejects the request.
	Selector     string `json:"selector,omitempty"`
	SelectorHint string `json:"selector_hint,omitempty"`
}

func (p actParams) kind() string {
	if p.Action != "" {
		return p.Action
	}
	return p.Kind
}

// pageKinds bypass the ref discipline: they address the page, not an element.
var pageKinds = map[string]bool{
	"goto": true, "wait": true, "screenshot": true,
	"setViewport": true, "evaluate": true,
}

// act runs one browser_act request. Callers hold s.mu.
func (s *Session) act(ctx context.Context, p actParams) (*action.Result, error) {
	if p.Selector != "" {
		return nil, reason.New(reason.LegacySelectorForbidden,
			"raw selectors are not accepted; take a snapshot and address elements by ref_id")
	}

	kind := p.kind()
	if kind == "" {
		return nil, reason.New(reason.InvalidInput, "act requires kind")
	}

	if pageKinds[kind] {
		return s.pageAct(ctx, kind, p)
	}

	k, err := action.ParseKind(kind)
	if err != nil {
		return nil, reason.Errorf(reason.InvalidInput, "%v", err)
	}
	if p.SnapshotID == "" || p.RefID == "" {
		return nil, reason.New(reason.RefRequired,
			fmt.Sprintf("%s requires snapshot_id and ref_id", kind))
	}

	target, err := s.newTarget(ctx)
	if err != nil {
		return nil, err
	}

	verify := true
	if p.Verify != nil {
		verify = *p.Verify
	}

	x := &action.Executor{
		Snapshots:    snapshotSource{s: s},
		Target:       target,
		Budget:       s.svc.cfg.ActionBudget,
		SubmitBudget: s.svc.cfg.SubmitBudget,
		Logger:       s.svc.logger,
	}
	res := x.Execute(ctx, &action.Request{
		SnapshotID:   p.SnapshotID,
		RefID:        p.RefID,
		Kind:         k,
		Value:        p.Value,
		Options:      p.Options,
		Verify:       verify,
		SelectorHint: p.SelectorHint,
	})
	res.TabID = s.currentTargetID()

	if res.EvaluateTimedOut {
		// An evaluate that never returned leaves the CDP connection in an
		// unknown state; reset the browser, keep the session id.
		s.svc.logger.Warn("host: evaluate timeout, resetting browser", "session", s.ID)
		if err := s.manager.Reset(); err != nil {
			s.svc.logger.Error("host: browser reset failed", "session", s.ID, "error", err)
		}
	}

	s.svc.events.Log(observability.EventActionExecuted, s.ID, map[string]any{
		"kind":        string(k),
		"ref_id":      res.RefIDUsed,
		"reason_code": string(res.ReasonCode),
		"effective":   res.Effective,
	})
	return res, nil
}

// pageAct handles the non-element kinds.
func (s *Session) pageAct(ctx context.Context, kind string, p actParams) (*action.Result, error) {
	res := &action.Result{ReasonCode: reason.OK, Success: true}

	switch kind {
	case "goto":
		url := p.URL
		if url == "" {
			if v, ok := p.Value.(string); ok {
				url = v
			}
		}
		if url == "" {
			return nil, reason.New(reason.InvalidInput, "goto requires url")
		}
		page, err := s.currentPage()
		if err != nil {
			return nil, err
		}
		if err := browser.NavigateAndSettle(ctx, page, url,
			s.svc.cfg.NavIdleCap, s.svc.cfg.NavSettle); err != nil {
			return nil, reason.Errorf(reason.NotActionable, "goto: %v", err)
		}

	case "wait":
		ms := 1000
		switch v := p.Value.(type) {
		case float64:
			ms = int(v)
		case int:
			ms = v
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}

	case "screenshot":
		shot, err := s.screenshot(ctx, screenshotParams{FullPage: p.Options.Screenshot})
		if err != nil {
			return nil, err
		}
		res.Screenshot = shot.Data

	case "setViewport":
		spec, ok := p.Value.(map[string]any)
		if !ok {
			return nil, reason.New(reason.InvalidInput, "setViewport requires {width, height}")
		}
		w, _ := spec["width"].(float64)
		h, _ := spec["height"].(float64)
		if w <= 0 || h <= 0 {
			return nil, reason.New(reason.InvalidInput, "setViewport requires positive width and height")
		}
		page, err := s.currentPage()
		if err != nil {
			return nil, err
		}
		err = proto.EmulationSetDeviceMetricsOverride{
			Width: int(w), Height: int(h), DeviceScaleFactor: 1.0,
		}.Call(page)
		if err != nil {
			return nil, reason.Errorf(reason.NotActionable, "setViewport: %v", err)
		}

	case "evaluate":
		js := p.JS
		if js == "" {
			if v, ok := p.Value.(string); ok {
				js = v
			}
		}
		if js == "" {
			return nil, reason.New(reason.InvalidInput, "evaluate requires js")
		}
		page, err := s.currentPage()
		if err != nil {
			return nil, err
		}
		evalCtx, cancel := context.WithTimeout(ctx, primitiveTimeout)
		out, err := page.Context(evalCtx).Eval(js)
		cancel()
		if err != nil {
			return nil, reason.Errorf(reason.NotActionable, "evaluate: %v", err)
		}
		res.Reason = out.Value.JSON("", "")
	}

	res.Effective = true
	res.CurrentURL = s.currentURL()
	res.TabID = s.currentTargetID()
	return res, nil
}

// currentTargetID is best-effort; an empty page list reports "".
func (s *Session) currentTargetID() string {
	if len(s.pages) == 0 || s.current >= len(s.pages) {
		return ""
	}
	return string(s.pages[s.current].TargetID)
}
