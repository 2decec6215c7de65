package observability

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/gaia/dbopen"

	_ "modernc.org/sqlite"
)

func TestLogAndRecent(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("Init: %v", err)
	}
	l := New(db)

	l.Log(EventSessionCreated, "s1", nil)
	l.Log(EventActionExecuted, "s1", map[string]any{"kind": "click", "reason_code": "ok"})
	l.Log(EventSessionCreated, "s2", nil)

	got, err := l.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, e := range got {
		if e.SessionID != "s1" {
			t.Fatalf("leaked session: %+v", e)
		}
	}

	all, err := l.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Recent all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
}

func TestCleanup(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatalf("Init: %v", err)
	}
	old := time.Now().Unix() - 90*86400
	if _, err := db.Exec(
		`INSERT INTO host_events (event_id, kind, session_id, details, created_at) VALUES (?,?,?,?,?)`,
		"evt_old", string(EventSessionClosed), "s1", "", old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l := New(db)
	l.Log(EventSessionCreated, "s1", nil)

	if err := Cleanup(context.Background(), db, RetentionConfig{EventDays: 30}); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	got, err := l.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 after cleanup", len(got))
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	Nop().Log(EventActionExecuted, "s1", map[string]any{"k": "v"})
}
