package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Viewport is the default emulated window for new pages.
var Viewport = proto.EmulationSetDeviceMetricsOverride{
	Width:             1280,
	Height:            800,
	DeviceScaleFactor: 1.0,
}

// NewPage creates a page with the stealth payload injected before any
// document script runs, applies the default viewport, and installs the
// manager's resource blocking. The page is blank; navigation is separate
// so callers can arm observers first.
func (m *Manager) NewPage() (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := Viewport.Call(page); err != nil {
		m.cfg.Logger.Warn("browser: set viewport failed", "error", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
			m.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return page, nil
}

// AdoptPage wraps an existing target (a tab opened by the page itself, or
// found after a reset) with the default viewport. Stealth cannot be injected
// retroactively; pages the SUT opens inherit the opener's environment.
func (m *Manager) AdoptPage(targetID proto.TargetTargetID) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	page, err := b.PageFromTarget(targetID)
	if err != nil {
		return nil, fmt.Errorf("browser: adopt target %s: %w", targetID, err)
	}
	return page, nil
}

// NavigateAndSettle navigates the page and waits for it to become usable:
// load event, then network idle capped at idleCap, then a fixed settle pause
// for SPA hydration.
func NavigateAndSettle(ctx context.Context, page *rod.Page, url string, idleCap, settle time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	// Load timeout is not fatal; slow pages are snapshotted with whatever
	// has rendered by the end of the settle below.
	_ = p.WaitLoad()

	if idleCap > 0 {
		page.Timeout(idleCap).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	}
	if settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
		}
	}
	return nil
}
