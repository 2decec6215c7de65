// CLAUDE:SUMMARY Action dispatch: decode params, resolve session, run the op under the session lock, one reason code per call.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/gaia/host/internal/action"
	"github.com/hazyhaar/gaia/host/internal/content"
	"github.com/hazyhaar/gaia/host/internal/snapshot"
	"github.com/hazyhaar/gaia/observability"
	"github.com/hazyhaar/gaia/reason"
)

// Execute runs one named action. It decodes params for the action, resolves
// the session, and serializes the operation on the session's mutex. The
// returned payload is JSON-marshalable; errors carrying a reason code are
// mapped by the transport layer.
func (s *Service) Execute(ctx context.Context, actionName string, params json.RawMessage) (any, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	switch actionName {
	case "browser_start":
		return s.doStart(ctx, params)
	case "browser_snapshot":
		return s.doSnapshot(ctx, params)
	case "browser_act":
		return s.doAct(ctx, params)
	case "browser_wait":
		return s.doWait(ctx, params)
	case "browser_screenshot":
		return s.doScreenshot(ctx, params)
	case "browser_pdf":
		return s.doPDF(ctx, params)
	case "browser_tabs", "browser_tabs_open", "browser_tabs_focus", "browser_tabs_close":
		return s.doTabs(ctx, actionName, params)
	case "browser_console_get":
		return s.doConsole(ctx, params)
	case "browser_errors_get":
		return s.doErrors(ctx, params)
	case "browser_requests_get":
		return s.doRequests(ctx, params)
	case "browser_response_body":
		return s.doResponseBody(ctx, params)
	case "browser_trace_start":
		return s.doTraceStart(ctx, params)
	case "browser_trace_stop":
		return s.doTraceStop(ctx, params)
	case "browser_state":
		return s.doState(ctx, params)
	case "browser_env":
		return s.doEnv(ctx, params)
	case "browser_content":
		return s.doContent(ctx, params)
	case "browser_close":
		return s.doClose(ctx, params)
	case "save_plan":
		return s.doSavePlan(ctx, params)
	case "load_plan_file":
		return s.doLoadPlan(ctx, params)
	case "list_plans":
		return s.doListPlans(ctx, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, actionName)
	}
}

func decode[T any](params json.RawMessage) (T, error) {
	var p T
	if err := json.Unmarshal(params, &p); err != nil {
		return p, reason.Errorf(reason.InvalidInput, "malformed params: %v", err)
	}
	return p, nil
}

// withSession resolves-or-creates the session, launches its browser if
// needed, and runs fn under the session lock.
func (s *Service) withSession(ctx context.Context, id string, fn func(sess *Session) (any, error)) (any, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.ensureStarted(ctx); err != nil {
		return nil, err
	}
	return fn(sess)
}

type startParams struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	TabID     string `json:"tab_id"`
}

func (s *Service) doStart(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[startParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		if p.TabID != "" {
			if _, err := sess.focusTab(p.TabID, nil); err != nil {
				return nil, err
			}
		}
		if p.URL != "" {
			if _, err := sess.captureSnapshot(ctx, p.URL); err != nil {
				return nil, err
			}
		}
		return map[string]any{
			"session_id":  sess.ID,
			"tab_id":      sess.currentTargetID(),
			"current_url": sess.currentURL(),
		}, nil
	})
}

type snapshotParams struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Mode        string `json:"mode"` // full (default) | efficient
	Refs        bool   `json:"refs"`
	Interactive bool   `json:"interactive"`
	Compact     bool   `json:"compact"`
	Limit       int    `json:"limit"`
	MaxChars    int    `json:"max_chars"`
}

func (s *Service) doSnapshot(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[snapshotParams](params)
	if err != nil {
		return nil, err
	}
	format, err := snapshot.ParseFormat(p.Format)
	if err != nil {
		return nil, reason.Errorf(reason.InvalidInput, "%v", err)
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		snap, err := sess.captureSnapshot(ctx, p.URL)
		if err != nil {
			return nil, err
		}

		out := map[string]any{
			"snapshot_id": snap.ID,
			"epoch":       snap.Epoch,
			"dom_hash":    snap.DomHash,
			"current_url": snap.URL,
			"tab_id":      sess.currentTargetID(),
			"elements":    len(snap.Elements),
		}
		if format == snapshot.FormatRefs || p.Refs {
			out["elements_by_ref"] = snap.ByRef
		}
		if format != snapshot.FormatRefs {
			out["snapshot"] = snapshot.Render(snap, format, snapshot.RenderOptions{
				InteractiveOnly: p.Interactive,
				Compact:         p.Compact || p.Mode == "efficient",
				Limit:           p.Limit,
				MaxChars:        p.MaxChars,
			})
		}
		if p.Mode != "efficient" {
			if shot, err := sess.screenshot(ctx, screenshotParams{}); err == nil {
				out["screenshot"] = shot.Data
			}
		}
		return out, nil
	})
}

func (s *Service) doAct(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[actParams](params)
	if err != nil {
		return nil, err
	}
	// Caller faults are rejected before any browser work: a forbidden
	// selector or a missing ref must not launch Chrome.
	if p.Selector != "" {
		return nil, reason.New(reason.LegacySelectorForbidden,
			"raw selectors are not accepted; take a snapshot and address elements by ref_id")
	}
	kind := p.kind()
	if kind == "" {
		return nil, reason.New(reason.InvalidInput, "act requires kind")
	}
	if !pageKinds[kind] {
		if _, err := action.ParseKind(kind); err != nil {
			return nil, reason.Errorf(reason.InvalidInput, "%v", err)
		}
		if p.SnapshotID == "" || p.RefID == "" {
			return nil, reason.New(reason.RefRequired,
				fmt.Sprintf("%s requires snapshot_id and ref_id", kind))
		}
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.act(ctx, p)
	})
}

func (s *Service) doWait(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[waitParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.waitFor(ctx, p)
	})
}

func (s *Service) doScreenshot(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[screenshotParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.screenshot(ctx, p)
	})
}

func (s *Service) doPDF(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[pdfParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.printPDF(ctx, p)
	})
}

type tabsParams struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	TargetID  string `json:"targetId"`
	TabID     string `json:"tab_id"`
	Index     *int   `json:"index"`
}

func (p tabsParams) target() string {
	if p.TargetID != "" {
		return p.TargetID
	}
	return p.TabID
}

func (s *Service) doTabs(ctx context.Context, actionName string, params json.RawMessage) (any, error) {
	p, err := decode[tabsParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		switch actionName {
		case "browser_tabs_open":
			return sess.openTab(p.URL)
		case "browser_tabs_focus":
			return sess.focusTab(p.target(), p.Index)
		case "browser_tabs_close":
			return sess.closeTab(p.target(), p.Index)
		default:
			return sess.tabsPayload(), nil
		}
	})
}

type ringParams struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
	URLFilter string `json:"url_filter"`
}

func (p ringParams) limit() int {
	if p.Limit <= 0 {
		return 100
	}
	return p.Limit
}

func (s *Service) doConsole(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[ringParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return map[string]any{
			"entries": sess.console.Last(p.limit()),
			"total":   sess.console.Total(),
		}, nil
	})
}

func (s *Service) doErrors(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[ringParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return map[string]any{
			"entries": sess.pageErrs.Last(p.limit()),
			"total":   sess.pageErrs.Total(),
		}, nil
	})
}

func (s *Service) doRequests(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[ringParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		entries := sess.requests.Last(p.limit())
		if p.URLFilter != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if containsFold(e.URL, p.URLFilter) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		return map[string]any{
			"entries": entries,
			"total":   sess.requests.Total(),
		}, nil
	})
}

type responseBodyParams struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
}

func (s *Service) doResponseBody(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[responseBodyParams](params)
	if err != nil {
		return nil, err
	}
	if p.RequestID == "" {
		return nil, reason.New(reason.InvalidInput, "response body requires request_id")
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		body, b64, err := sess.responseBody(p.RequestID)
		if err != nil {
			return nil, reason.Errorf(reason.NotFound, "response body: %v", err)
		}
		return map[string]any{"body": body, "base64": b64}, nil
	})
}

type traceParams struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

func (s *Service) doTraceStart(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[traceParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		path := p.Path
		if path == "" {
			path = fmt.Sprintf("traces/%s-%s.json", sess.ID, s.newID())
		}
		full, err := s.resolveDataPath(path)
		if err != nil {
			return nil, reason.Errorf(reason.NotActionable, "trace path: %v", err)
		}
		if err := sess.startTrace(ctx, full); err != nil {
			return nil, err
		}
		s.events.Log(observability.EventTraceStarted, sess.ID, map[string]any{"path": full})
		return map[string]any{"active": true, "path": full}, nil
	})
}

func (s *Service) doTraceStop(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[traceParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		path, n, err := sess.stopTrace(ctx)
		if err != nil {
			return nil, err
		}
		s.events.Log(observability.EventTraceStopped, sess.ID, map[string]any{"path": path, "bytes": n})
		return map[string]any{"active": false, "path": path, "bytes": n}, nil
	})
}

func (s *Service) doState(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[stateParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.browserState(ctx, p)
	})
}

func (s *Service) doEnv(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[envParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		return sess.browserEnv(ctx, p)
	})
}

type contentParams struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"` // markdown (default) | text
	MaxChars  int    `json:"max_chars"`
}

func (s *Service) doContent(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[contentParams](params)
	if err != nil {
		return nil, err
	}
	return s.withSession(ctx, p.SessionID, func(sess *Session) (any, error) {
		page, err := sess.currentPage()
		if err != nil {
			return nil, err
		}
		html, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("host: page html: %w", err)
		}
		res, err := content.Render(html, content.Options{
			Format:   content.Format(p.Format),
			MaxChars: p.MaxChars,
		})
		if err != nil {
			return nil, reason.Errorf(reason.NotActionable, "content render: %v", err)
		}
		return res, nil
	})
}

type closeParams struct {
	SessionID string `json:"session_id"`
}

func (s *Service) doClose(_ context.Context, params json.RawMessage) (any, error) {
	p, err := decode[closeParams](params)
	if err != nil {
		return nil, err
	}
	if err := s.closeSession(p.SessionID); err != nil {
		return nil, err
	}
	return map[string]any{"reason_code": string(reason.OK)}, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
