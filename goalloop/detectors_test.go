package goalloop

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCheckDecision_ResetsOnChange(t *testing.T) {
	var d detectors
	for i := 0; i < sameDecisionLimit-1; i++ {
		if why, stop := d.checkDecision("CLICK|e1|"); stop {
			t.Fatalf("fired early at %d: %s", i, why)
		}
	}
	// A different move resets the streak.
	if _, stop := d.checkDecision("FILL|e2|x"); stop {
		t.Fatal("fired on fresh decision")
	}
	for i := 0; i < sameDecisionLimit-1; i++ {
		if _, stop := d.checkDecision("FILL|e2|x"); stop && i < sameDecisionLimit-2 {
			t.Fatalf("fired early at %d", i)
		}
	}
	if _, stop := d.checkDecision("FILL|e2|x"); !stop {
		t.Fatal("did not fire at limit")
	}
}

func TestCheckDOM_FiresAtLimit(t *testing.T) {
	var d detectors
	for i := 1; i < sameDOMLimit; i++ {
		if why, stop := d.checkDOM("same"); stop {
			t.Fatalf("fired early at %d: %s", i, why)
		}
	}
	why, stop := d.checkDOM("same")
	if !stop {
		t.Fatal("did not fire at limit")
	}
	if !strings.Contains(why, "unchanged") {
		t.Errorf("why = %q", why)
	}
}

func TestCheckNoDOM(t *testing.T) {
	var d detectors
	d.checkNoDOM()
	d.domOK() // a good snapshot resets the streak
	for i := 1; i < noDOMLimit; i++ {
		if _, stop := d.checkNoDOM(); stop {
			t.Fatalf("fired early at %d", i)
		}
	}
	if _, stop := d.checkNoDOM(); !stop {
		t.Fatal("did not fire at limit")
	}
}

func TestCheckLoginGate(t *testing.T) {
	gate := `- textbox "Password" [t0-f0-e1]` + "\n" + `- button "Sign in" [t0-f0-e2]`
	plain := `- button "Add to cart" [t0-f0-e1]`
	creds := json.RawMessage(`{"password":"hunter2"}`)

	var d detectors
	for i := 1; i < loginGateLimit; i++ {
		if _, stop := d.checkLoginGate(gate, nil); stop {
			t.Fatalf("fired early at %d", i)
		}
	}
	if _, stop := d.checkLoginGate(gate, nil); !stop {
		t.Fatal("did not fire at limit")
	}

	// Credentials suppress the detector entirely.
	d = detectors{}
	for i := 0; i < loginGateLimit+2; i++ {
		if _, stop := d.checkLoginGate(gate, creds); stop {
			t.Fatal("fired despite credentials")
		}
	}

	// A non-gate page resets the streak.
	d = detectors{}
	d.checkLoginGate(gate, nil)
	d.checkLoginGate(gate, nil)
	d.checkLoginGate(plain, nil)
	if d.loginGateStreak != 0 {
		t.Errorf("streak = %d after reset, want 0", d.loginGateStreak)
	}
}

func TestCheckRecovery(t *testing.T) {
	var d detectors
	if _, stop := d.checkRecovery(true); stop {
		t.Fatal("fired on first failure")
	}
	d.checkRecovery(false) // success resets
	d.checkRecovery(true)
	if _, stop := d.checkRecovery(true); stop {
		t.Fatal("fired at exactly the limit")
	}
	if _, stop := d.checkRecovery(true); !stop {
		t.Fatal("did not fire past the limit")
	}
}

func TestLooksLikeLoginGate(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		want    bool
	}{
		{"sign in with password", "Sign in\npassword", true},
		{"login with password", "LOGIN\nPassword field", true},
		{"password alone", "password reset", false},
		{"sign in alone", "Sign in with Google", false},
		{"shop page", "Add to cart", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeLoginGate(tt.listing); got != tt.want {
				t.Errorf("looksLikeLoginGate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasCredentials(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"empty", "", false},
		{"password key", `{"password":"x"}`, true},
		{"nested key name", `{"user_password":"x"}`, true},
		{"credentials key", `{"credentials":{"u":"a"}}`, true},
		{"unrelated", `{"search_term":"shoes"}`, false},
		{"malformed", `{not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.data != "" {
				raw = json.RawMessage(tt.data)
			}
			if got := hasCredentials(raw); got != tt.want {
				t.Errorf("hasCredentials = %v, want %v", got, tt.want)
			}
		})
	}
}
