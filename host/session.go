// CLAUDE:SUMMARY Session: one named browser, page list, epoch counter, snapshot store, rings, dialog arming, single-writer mutex.
package host

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/gaia/host/internal/browser"
	"github.com/hazyhaar/gaia/host/internal/ring"
	"github.com/hazyhaar/gaia/host/internal/snapshot"
	"github.com/hazyhaar/gaia/observability"
)

// Session is one named, long-lived browser instance. All actions,
// snapshots, and navigations on a session are serialized by its mutex;
// ring buffers are written from event goroutines with their own locking.
type Session struct {
	ID  string
	svc *Service

	// mu is the single-writer lock. Every dispatched operation holds it
	// for its whole duration.
	mu sync.Mutex

	manager   *browser.Manager
	startOnce sync.Once
	startErr  error

	pages   []*rod.Page
	current int

	epoch     atomic.Uint64
	snaps     *snapshot.Store
	collector *snapshot.Collector

	console  *ring.Buffer[ConsoleEntry]
	pageErrs *ring.Buffer[PageError]
	requests *ring.Buffer[RequestEntry]
	dialogs  *ring.Buffer[DialogEntry]

	// Dialog/file-chooser arming. Written on the dispatch path under armMu,
	// read by the event handlers bound in observe.go, which run off the
	// page's event goroutine and never hold s.mu.
	armMu        sync.Mutex
	dialogAccept bool
	dialogText   string
	dialogArmed  bool
	chooserFiles []string

	// storedCSS holds values captured by store-style assertions for later
	// comparison.
	storedCSS map[string]string

	trace  *traceState
	closed bool
}

// armDialog arms automatic dialog handling.
func (s *Session) armDialog(accept bool, text string) {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	s.dialogArmed = true
	s.dialogAccept = accept
	s.dialogText = text
}

// armChooser arms file paths for the next intercepted file chooser.
func (s *Session) armChooser(files []string) {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	s.chooserFiles = files
}

// disarm clears all dialog and chooser arming.
func (s *Session) disarm() {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	s.dialogArmed = false
	s.dialogAccept = false
	s.dialogText = ""
	s.chooserFiles = nil
}

// armedDialog snapshots the dialog arming state.
func (s *Session) armedDialog() (armed, accept bool, text string) {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	return s.dialogArmed, s.dialogAccept, s.dialogText
}

// armedChooser snapshots the chooser arming state.
func (s *Session) armedChooser() []string {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	return s.chooserFiles
}

func newSession(svc *Service, id string, bcfg browser.Config) *Session {
	cap := svc.cfg.RingCap
	return &Session{
		ID:        id,
		svc:       svc,
		manager:   browser.NewManager(bcfg),
		snaps:     snapshot.NewStore(svc.cfg.SnapshotCap),
		collector: &snapshot.Collector{MaxElements: svc.cfg.MaxElements, Logger: svc.logger},
		console:   ring.New[ConsoleEntry](cap),
		pageErrs:  ring.New[PageError](cap),
		requests:  ring.New[RequestEntry](cap),
		dialogs:   ring.New[DialogEntry](cap),
		storedCSS: make(map[string]string),
	}
}

// ensureStarted launches Chrome exactly once per session. Concurrent
// first-touch requests share the launch.
func (s *Session) ensureStarted(ctx context.Context) error {
	s.startOnce.Do(func() {
		b, err := s.manager.Start(s.svc.ctx)
		if err != nil {
			s.startErr = fmt.Errorf("host: start session %s: %w", s.ID, err)
			return
		}
		s.manager.SetResetCallback(&browser.ResetCallback{
			BeforeReset: func() {
				s.pages = nil
				s.current = 0
			},
			AfterReset: func(nb *rod.Browser) {
				s.svc.logger.Info("host: browser reset, pages reopen lazily", "session", s.ID)
				s.svc.events.Log(observability.EventBrowserReset, s.ID, nil)
			},
		})
		_ = b
		_, s.startErr = s.openFirstPage()
	})
	return s.startErr
}

func (s *Session) openFirstPage() (*rod.Page, error) {
	page, err := s.manager.NewPage()
	if err != nil {
		return nil, fmt.Errorf("host: first page for %s: %w", s.ID, err)
	}
	s.bindObservers(page)
	s.pages = []*rod.Page{page}
	s.current = 0
	s.svc.hub.startScreencast(s, page)
	return page, nil
}

// currentPage returns the live current page, reopening one after a reset.
// Callers hold s.mu.
func (s *Session) currentPage() (*rod.Page, error) {
	if len(s.pages) == 0 {
		return s.openFirstPage()
	}
	if s.current < 0 || s.current >= len(s.pages) {
		s.current = 0
	}
	return s.pages[s.current], nil
}

// currentURL is best-effort; a dead page reports "".
func (s *Session) currentURL() string {
	if len(s.pages) == 0 || s.current >= len(s.pages) {
		return ""
	}
	info, err := s.pages[s.current].Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// captureSnapshot navigates if requested and collects a fresh snapshot.
// Callers hold s.mu.
func (s *Session) captureSnapshot(ctx context.Context, navURL string) (*snapshot.Snapshot, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}

	if navURL != "" && !sameURL(navURL, s.currentURL()) {
		if err := browser.NavigateAndSettle(ctx, page, navURL,
			s.svc.cfg.NavIdleCap, s.svc.cfg.NavSettle); err != nil {
			return nil, err
		}
	}

	epoch := s.epoch.Add(1)
	snap, err := s.collector.Capture(ctx, page, s.ID, epoch, s.current)
	if err != nil {
		return nil, err
	}
	s.snaps.Put(snap)
	s.svc.events.Log(observability.EventSnapshotTaken, s.ID, map[string]any{
		"snapshot_id": snap.ID, "elements": len(snap.Elements),
	})
	return snap, nil
}

// snapshotSource adapts the session for the action executor. The executor
// runs while the session lock is already held, so these must not re-lock.
type snapshotSource struct {
	s *Session
}

func (src snapshotSource) Get(id string) *snapshot.Snapshot {
	return src.s.snaps.Get(id)
}

func (src snapshotSource) Capture(ctx context.Context) (*snapshot.Snapshot, error) {
	return src.s.captureSnapshot(ctx, "")
}

// Close destroys the session's browser.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopTraceQuiet()
	return s.manager.Close()
}

// sameURL compares two URLs after trimming whitespace, the fragment, and a
// trailing slash. A snapshot request naming the live URL never renavigates.
func sameURL(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	out := u.String()
	return strings.TrimSuffix(out, "/")
}
