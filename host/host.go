// CLAUDE:SUMMARY Service root: session registry with serialized first-touch, config defaults, lifecycle, shared screencast hub.
// Package host is the browser control service. It owns persistent browser
// sessions, exposes the snapshot/act/wait/observe action surface over HTTP
// and MCP, and enforces reference-based element addressing: snapshots
// produce opaque refs, actions consume refs, raw selectors are rejected.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/gaia/host/internal/browser"
	"github.com/hazyhaar/gaia/idgen"
	"github.com/hazyhaar/gaia/observability"
	"github.com/hazyhaar/gaia/planstore"
)

// Config configures the Service.
type Config struct {
	// DataRoot is the only directory traces, PDFs, screenshots, and
	// downloads may be written under. Default: "data".
	DataRoot string `yaml:"data_root"`

	// Headless runs Chrome without a window. Default false: a human must
	// be able to take over on captchas and auth gates.
	Headless bool `yaml:"headless"`

	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string `yaml:"remote_url"`

	// XvfbDisplay backs headful mode on servers without a display.
	XvfbDisplay string `yaml:"xvfb_display"`

	// SnapshotCap bounds retained snapshots per session. Default 20.
	SnapshotCap int `yaml:"snapshot_cap"`

	// MaxElements caps elements per snapshot. Default 2200.
	MaxElements int `yaml:"max_elements"`

	// RingCap bounds each observability ring buffer. Default 800.
	RingCap int `yaml:"ring_cap"`

	// ActionBudget bounds one action wall-clock. Default 45s.
	ActionBudget time.Duration `yaml:"action_budget"`

	// SubmitBudget bounds submit-like clicks. Default 20s.
	SubmitBudget time.Duration `yaml:"submit_budget"`

	// NavIdleCap caps the post-navigation network-idle wait. Default 5s.
	NavIdleCap time.Duration `yaml:"nav_idle_cap"`

	// NavSettle is the fixed post-navigation settle for SPA hydration.
	// Default 3s.
	NavSettle time.Duration `yaml:"nav_settle"`
}

func (c *Config) defaults() {
	if c.DataRoot == "" {
		c.DataRoot = "data"
	}
	if c.SnapshotCap <= 0 {
		c.SnapshotCap = 20
	}
	if c.MaxElements <= 0 {
		c.MaxElements = 2200
	}
	if c.RingCap <= 0 {
		c.RingCap = 800
	}
	if c.ActionBudget <= 0 {
		c.ActionBudget = 45 * time.Second
	}
	if c.SubmitBudget <= 0 {
		c.SubmitBudget = 20 * time.Second
	}
	if c.NavIdleCap <= 0 {
		c.NavIdleCap = 5 * time.Second
	}
	if c.NavSettle <= 0 {
		c.NavSettle = 3 * time.Second
	}
}

// Service owns every browser session and the shared screencast hub.
type Service struct {
	cfg    Config
	logger *slog.Logger
	newID  idgen.Generator
	hub    *Hub
	events observability.Logger
	plans  *planstore.Store

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator sets the generator behind trace ids and subscriber keys.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) { s.newID = g }
}

// WithEventLogger wires the sqlite event log. Default: a no-op logger.
func WithEventLogger(l observability.Logger) Option {
	return func(s *Service) { s.events = l }
}

// WithPlanStore wires the plan repository behind save_plan/load_plan_file.
// Without it the plan actions report not_actionable.
func WithPlanStore(p *planstore.Store) Option {
	return func(s *Service) { s.plans = p }
}

// New creates a Service. Sessions are created lazily on first touch.
func New(cfg Config, opts ...Option) *Service {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:      cfg,
		logger:   slog.Default(),
		newID:    idgen.NanoID(10),
		events:   observability.Nop(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	return s
}

// session resolves or creates the session for id. Creation registers the
// session immediately so concurrent first-touch requests for the same id
// share one entry; the actual browser launch is serialized inside the
// session's start once.
func (s *Service) session(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("host: empty session_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess := newSession(s, id, browser.Config{
		RemoteURL:   s.cfg.RemoteURL,
		Headless:    s.cfg.Headless,
		XvfbDisplay: s.cfg.XvfbDisplay,
		Logger:      s.logger,
	})
	s.sessions[id] = sess
	s.logger.Info("host: session created", "session", id)
	s.events.Log(observability.EventSessionCreated, id, nil)
	return sess, nil
}

// existing resolves a session without creating one.
func (s *Service) existing(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// closeSession destroys one session.
func (s *Service) closeSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	err := sess.Close()
	s.logger.Info("host: session closed", "session", id)
	s.events.Log(observability.EventSessionClosed, id, nil)
	return err
}

// Close shuts down every session and the hub.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			s.logger.Warn("host: session close failed", "session", sess.ID, "error", err)
		}
	}
	s.hub.Close()
	s.cancel()
	return nil
}
