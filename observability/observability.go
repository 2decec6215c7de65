// Package observability records domain events of the gaia host — session
// lifecycle, actions, snapshots, goal runs — into a sqlite event log with
// retention cleanup. Recording is best-effort: a failing store never blocks
// or fails the host.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/gaia/idgen"
)

// EventKind classifies one recorded event.
type EventKind string

const (
	EventSessionCreated  EventKind = "session_created"
	EventSessionClosed   EventKind = "session_closed"
	EventBrowserReset    EventKind = "browser_reset"
	EventSnapshotTaken   EventKind = "snapshot_taken"
	EventActionExecuted  EventKind = "action_executed"
	EventTraceStarted    EventKind = "trace_started"
	EventTraceStopped    EventKind = "trace_stopped"
	EventGoalStarted     EventKind = "goal_started"
	EventGoalFinished    EventKind = "goal_finished"
	EventGoalStep        EventKind = "goal_step"
	EventPlanSaved       EventKind = "plan_saved"
	EventScreencastStart EventKind = "screencast_start"
)

// Logger records events. Implementations must never block the caller on
// store failures.
type Logger interface {
	Log(kind EventKind, sessionID string, details map[string]any)
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Log(EventKind, string, map[string]any) {}

// EventLogger is the sqlite-backed Logger.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	log   *slog.Logger
}

// Option configures an EventLogger.
type Option func(*EventLogger)

// WithIDGenerator sets a custom event id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *EventLogger) { l.newID = gen }
}

// WithSlog sets the fallback logger used when the store fails.
func WithSlog(log *slog.Logger) Option {
	return func(l *EventLogger) { l.log = log }
}

// New creates an EventLogger over an opened observability database.
// Call Init first to apply the schema.
func New(db *sql.DB, opts ...Option) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.UUIDv7()),
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Init applies the schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Log records one event. Errors go to slog and are otherwise swallowed.
func (l *EventLogger) Log(kind EventKind, sessionID string, details map[string]any) {
	var payload string
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			payload = string(b)
		}
	}
	_, err := l.db.Exec(`
		INSERT INTO host_events (event_id, kind, session_id, details, created_at)
		VALUES (?,?,?,?,?)`,
		l.newID(), string(kind), sessionID, payload, time.Now().Unix())
	if err != nil {
		l.log.Error("observability: event log failed", "kind", kind, "error", err)
	}
}

// Recent returns up to limit events for a session, newest first. An empty
// sessionID returns events across all sessions.
func (l *EventLogger) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT event_id, kind, session_id, details, created_at
	      FROM host_events`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.SessionID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Event is one stored row.
type Event struct {
	ID        string    `json:"event_id"`
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Details   string    `json:"details"`
	CreatedAt int64     `json:"created_at"`
}

// RetentionConfig specifies retention in days. Zero disables cleanup.
type RetentionConfig struct {
	EventDays      int
	RunVacuumAfter bool
}

// Cleanup deletes events past retention.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	if cfg.EventDays > 0 {
		cutoff := time.Now().Unix() - int64(cfg.EventDays)*86400
		if _, err := db.ExecContext(ctx,
			`DELETE FROM host_events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return err
		}
	}
	return nil
}

// Schema is the complete DDL for the event log.
const Schema = `
CREATE TABLE IF NOT EXISTS host_events (
    event_id   TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    details    TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_host_events_session_time
    ON host_events(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_host_events_kind_time
    ON host_events(kind, created_at DESC);
`
