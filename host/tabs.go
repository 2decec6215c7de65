// CLAUDE:SUMMARY Tab model: ordered page list, targetId/prefix/index addressing, open/focus/close returning the full tab payload.
package host

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/gaia/reason"
)

// TabInfo describes one tab of a session.
type TabInfo struct {
	TargetID string `json:"target_id"`
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Current  bool   `json:"current"`
}

// TabsPayload is returned by every tab operation so callers never have to
// recompute the list.
type TabsPayload struct {
	Tabs         []TabInfo `json:"tabs"`
	CurrentTabID string    `json:"current_tab_id"`
	CurrentIndex int       `json:"current_index"`
}

// AmbiguousTargetError reports a targetId prefix matching more than one
// target. Matches carries every full id the prefix matched.
type AmbiguousTargetError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("host: target id prefix %q matches %d targets", e.Prefix, len(e.Matches))
}

// Code routes the error to its reason code at the transport layer.
func (e *AmbiguousTargetError) Code() reason.Code { return reason.AmbiguousTargetID }

// matchTargetID resolves a target selector against the session's target ids,
// checking prefix ambiguity against the browser-wide target list (a strict
// superset of the session's). Resolution order: exact id, unambiguous
// prefix, nothing.
func matchTargetID(sel string, sessionTargets, allTargets []string) (string, error) {
	for _, id := range sessionTargets {
		if id == sel {
			return id, nil
		}
	}

	var matches []string
	for _, id := range allTargets {
		if strings.HasPrefix(id, sel) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("host: no target matches %q", sel)
	case 1:
		for _, id := range sessionTargets {
			if id == matches[0] {
				return id, nil
			}
		}
		return "", fmt.Errorf("host: target %s belongs to another session", matches[0])
	default:
		return "", &AmbiguousTargetError{Prefix: sel, Matches: matches}
	}
}

// sessionTargetIDs lists this session's page target ids in tab order.
// Callers hold s.mu.
func (s *Session) sessionTargetIDs() []string {
	ids := make([]string, len(s.pages))
	for i, p := range s.pages {
		ids[i] = string(p.TargetID)
	}
	return ids
}

// browserTargetIDs lists every page target the browser knows, including
// tabs the SUT opened outside this session's bookkeeping.
func (s *Session) browserTargetIDs() []string {
	b := s.manager.Browser()
	if b == nil {
		return nil
	}
	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return s.sessionTargetIDs()
	}
	var ids []string
	for _, t := range res.TargetInfos {
		if t.Type == "page" {
			ids = append(ids, string(t.TargetID))
		}
	}
	return ids
}

// resolveTabIndex resolves a tab selector to a page index. targetID is
// preferred; index is the backward-compatible fallback when targetID is
// empty. Callers hold s.mu.
func (s *Session) resolveTabIndex(targetID string, index *int) (int, error) {
	if targetID != "" {
		full, err := matchTargetID(targetID, s.sessionTargetIDs(), s.browserTargetIDs())
		if err != nil {
			return 0, err
		}
		for i, p := range s.pages {
			if string(p.TargetID) == full {
				return i, nil
			}
		}
		return 0, fmt.Errorf("host: resolved target %s has no page", full)
	}
	if index != nil {
		if *index < 0 || *index >= len(s.pages) {
			return 0, fmt.Errorf("host: tab index %d out of range [0,%d)", *index, len(s.pages))
		}
		return *index, nil
	}
	return s.current, nil
}

// tabsPayload builds the full tab listing. Callers hold s.mu.
func (s *Session) tabsPayload() TabsPayload {
	out := TabsPayload{CurrentIndex: s.current}
	for i, p := range s.pages {
		info := TabInfo{TargetID: string(p.TargetID), Index: i, Current: i == s.current}
		if pi, err := p.Info(); err == nil {
			info.URL = pi.URL
			info.Title = pi.Title
		}
		out.Tabs = append(out.Tabs, info)
		if i == s.current {
			out.CurrentTabID = info.TargetID
		}
	}
	return out
}

// openTab creates a page, binds observers, and focuses it. Callers hold s.mu.
func (s *Session) openTab(navURL string) (TabsPayload, error) {
	page, err := s.manager.NewPage()
	if err != nil {
		return TabsPayload{}, fmt.Errorf("host: open tab: %w", err)
	}
	s.bindObservers(page)
	s.pages = append(s.pages, page)
	s.current = len(s.pages) - 1
	if navURL != "" {
		if err := page.Navigate(navURL); err != nil {
			return s.tabsPayload(), fmt.Errorf("host: navigate new tab: %w", err)
		}
	}
	return s.tabsPayload(), nil
}

// focusTab switches the current tab. Callers hold s.mu.
func (s *Session) focusTab(targetID string, index *int) (TabsPayload, error) {
	idx, err := s.resolveTabIndex(targetID, index)
	if err != nil {
		return TabsPayload{}, err
	}
	s.current = idx
	if _, err := s.pages[idx].Activate(); err != nil {
		s.svc.logger.Debug("host: tab activate failed", "session", s.ID, "error", err)
	}
	return s.tabsPayload(), nil
}

// closeTab closes one tab; closing the last tab leaves the session with an
// empty list and the next operation reopens a blank page. Callers hold s.mu.
func (s *Session) closeTab(targetID string, index *int) (TabsPayload, error) {
	idx, err := s.resolveTabIndex(targetID, index)
	if err != nil {
		return TabsPayload{}, err
	}
	if err := s.pages[idx].Close(); err != nil {
		s.svc.logger.Debug("host: tab close failed", "session", s.ID, "error", err)
	}
	s.pages = append(s.pages[:idx], s.pages[idx+1:]...)
	switch {
	case len(s.pages) == 0:
		s.current = 0
	case s.current >= len(s.pages):
		s.current = len(s.pages) - 1
	case s.current > idx:
		s.current--
	}
	return s.tabsPayload(), nil
}
