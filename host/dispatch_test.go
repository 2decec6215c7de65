package host

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hazyhaar/gaia/reason"
)

// Dispatch-level validation must reject caller faults before any browser
// work; these cases never touch Chrome.

func codeOf(t *testing.T, err error) reason.Code {
	t.Helper()
	var re *reason.Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *reason.Error, got %v", err)
	}
	return re.Code
}

func TestExecute_UnknownAction(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	_, err := svc.Execute(context.Background(), "browser_teleport", nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestExecute_ActValidation(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	tests := []struct {
		name   string
		params string
		want   reason.Code
	}{
		{
			name:   "selector forbidden",
			params: `{"session_id":"s1","kind":"click","selector":"#login"}`,
			want:   reason.LegacySelectorForbidden,
		},
		{
			name:   "selector forbidden even with refs",
			params: `{"session_id":"s1","kind":"click","snapshot_id":"s1:1:abc","ref_id":"t0-f0-e0","selector":".btn"}`,
			want:   reason.LegacySelectorForbidden,
		},
		{
			name:   "missing kind",
			params: `{"session_id":"s1"}`,
			want:   reason.InvalidInput,
		},
		{
			name:   "unknown kind",
			params: `{"session_id":"s1","kind":"teleport"}`,
			want:   reason.InvalidInput,
		},
		{
			name:   "element kind without ref",
			params: `{"session_id":"s1","kind":"click"}`,
			want:   reason.RefRequired,
		},
		{
			name:   "fill without snapshot id",
			params: `{"session_id":"s1","kind":"fill","ref_id":"t0-f0-e3","value":"x"}`,
			want:   reason.RefRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Execute(context.Background(), "browser_act", json.RawMessage(tt.params))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := codeOf(t, err); got != tt.want {
				t.Errorf("reason code = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecute_SnapshotBadFormat(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	_, err := svc.Execute(context.Background(), "browser_snapshot",
		json.RawMessage(`{"session_id":"s1","format":"yaml"}`))
	if got := codeOf(t, err); got != reason.InvalidInput {
		t.Errorf("reason code = %s, want %s", got, reason.InvalidInput)
	}
}

func TestExecute_ResponseBodyRequiresRequestID(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	_, err := svc.Execute(context.Background(), "browser_response_body",
		json.RawMessage(`{"session_id":"s1"}`))
	if got := codeOf(t, err); got != reason.InvalidInput {
		t.Errorf("reason code = %s, want %s", got, reason.InvalidInput)
	}
}

func TestExecute_PlansWithoutStore(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	for _, actionName := range []string{"save_plan", "load_plan_file", "list_plans"} {
		_, err := svc.Execute(context.Background(), actionName, json.RawMessage(`{}`))
		if got := codeOf(t, err); got != reason.NotActionable {
			t.Errorf("%s: reason code = %s, want %s", actionName, got, reason.NotActionable)
		}
	}
}

func TestExecute_CloseUnknownSession(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	_, err := svc.Execute(context.Background(), "browser_close",
		json.RawMessage(`{"session_id":"ghost"}`))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExecute_MalformedParams(t *testing.T) {
	svc := New(Config{DataRoot: t.TempDir()})
	defer svc.Close()

	_, err := svc.Execute(context.Background(), "browser_act", json.RawMessage(`{"kind":`))
	if got := codeOf(t, err); got != reason.InvalidInput {
		t.Errorf("reason code = %s, want %s", got, reason.InvalidInput)
	}
}
