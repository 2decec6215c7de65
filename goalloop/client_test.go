package goalloop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hazyhaar/gaia/reason"
)

func TestClient_ExecuteOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var env executeEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		if env.Action != "browser_snapshot" {
			t.Errorf("action = %q", env.Action)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"snapshot_id":"s1:1:abc"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	raw, err := c.Execute(context.Background(), "browser_snapshot", map[string]any{"session_id": "s1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if got["snapshot_id"] != "s1:1:abc" {
		t.Errorf("reply = %v", got)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   reason.Code
	}{
		{"bad request", http.StatusBadRequest, reason.HTTP4xx},
		{"not found", http.StatusNotFound, reason.HTTP4xx},
		{"server error", http.StatusInternalServerError, reason.HTTP5xx},
		{"unavailable", http.StatusServiceUnavailable, reason.HTTP5xx},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"reason_code":"whatever"}`))
			}))
			t.Cleanup(srv.Close)

			c := NewClient(srv.URL)
			_, err := c.Execute(context.Background(), "browser_act", nil)
			if err == nil {
				t.Fatal("Execute: want error")
			}
			if got := reason.CodeOf(err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClient_HostUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Execute(context.Background(), "browser_snapshot", nil)
	if err == nil {
		t.Fatal("Execute: want error")
	}
	if got := reason.CodeOf(err); got != reason.HTTP5xx {
		t.Errorf("CodeOf = %q, want %q", got, reason.HTTP5xx)
	}
}
