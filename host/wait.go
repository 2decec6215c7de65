package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/gaia/reason"
)

// waitParams is the browser_wait request body. At least one condition must
// be set; conditions combine with AND.
type waitParams struct {
	SessionID string `json:"session_id"`

	URL       string `json:"url"`        // substring of the current URL
	LoadState string `json:"load_state"` // load | domcontentloaded | networkidle
	Selector  string `json:"selector"`   // element exists
	Text      string `json:"text"`       // body text contains
	JS        string `json:"js"`         // predicate returning truthy
	TimeMS    int    `json:"time_ms"`    // unconditional pause

	TimeoutMS int `json:"timeout_ms"` // default 15000
}

func (p waitParams) hasCondition() bool {
	return p.URL != "" || p.LoadState != "" || p.Selector != "" ||
		p.Text != "" || p.JS != "" || p.TimeMS > 0
}

const waitPollInterval = 250 * time.Millisecond

// waitFor blocks until every requested condition holds or the deadline
// passes. Callers hold s.mu.
func (s *Session) waitFor(ctx context.Context, p waitParams) (map[string]any, error) {
	if !p.hasCondition() {
		return nil, reason.New(reason.InvalidInput, "wait requires at least one condition")
	}

	timeout := 15 * time.Second
	if p.TimeoutMS > 0 {
		timeout = time.Duration(p.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	if p.TimeMS > 0 {
		select {
		case <-ctx.Done():
			return s.waitResult(reason.ActionTimeout), nil
		case <-time.After(time.Duration(p.TimeMS) * time.Millisecond):
		}
	}

	if p.LoadState != "" {
		if err := waitLoadState(ctx, page, p.LoadState); err != nil {
			if ctx.Err() != nil {
				return s.waitResult(reason.ActionTimeout), nil
			}
			return nil, err
		}
	}

	for {
		met, err := s.conditionsMet(ctx, page, p)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if met {
			return s.waitResult(reason.OK), nil
		}
		select {
		case <-ctx.Done():
			return s.waitResult(reason.ActionTimeout), nil
		case <-time.After(waitPollInterval):
		}
	}
}

func (s *Session) waitResult(code reason.Code) map[string]any {
	return map[string]any{
		"current_url": s.currentURL(),
		"reason_code": string(code),
		"success":     code == reason.OK,
	}
}

func waitLoadState(ctx context.Context, page *rod.Page, state string) error {
	p := page.Context(ctx)
	switch state {
	case "load", "domcontentloaded":
		return p.WaitLoad()
	case "networkidle":
		p.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
		return ctx.Err()
	default:
		return reason.New(reason.InvalidInput,
			fmt.Sprintf("unknown load_state %q", state))
	}
}

// conditionsMet evaluates the polled conditions once.
func (s *Session) conditionsMet(ctx context.Context, page *rod.Page, p waitParams) (bool, error) {
	if p.URL != "" && !strings.Contains(s.currentURL(), p.URL) {
		return false, nil
	}
	if p.Selector != "" {
		has, _, err := page.Context(ctx).Has(p.Selector)
		if err != nil || !has {
			return false, err
		}
	}
	if p.Text != "" {
		res, err := page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
		if err != nil {
			return false, err
		}
		if !strings.Contains(res.Value.Str(), p.Text) {
			return false, nil
		}
	}
	if p.JS != "" {
		res, err := page.Context(ctx).Eval(p.JS)
		if err != nil {
			return false, fmt.Errorf("host: wait js: %w", err)
		}
		if !res.Value.Bool() {
			return false, nil
		}
	}
	return true, nil
}
