// CLAUDE:SUMMARY Stagnation detectors: repeated decision, frozen DOM, unreachable DOM, login-gate loop, recovery failures.
package goalloop

import (
	"encoding/json"
	"strings"
)

// Detector thresholds. A detector fires when its streak reaches the limit.
const (
	sameDecisionLimit    = 5
	sameDOMLimit         = 10
	noDOMLimit           = 3
	loginGateLimit       = 3
	recoveryFailureLimit = 2
)

// detectors tracks consecutive-step streaks. All streaks reset on progress.
type detectors struct {
	lastDecision   string
	decisionStreak int

	lastDOMHash string
	domStreak   int

	noDOMStreak int

	loginGateStreak  int
	recoveryFailures int
}

// checkDecision records a decision signature and reports a stop reason when
// the same move repeats too long.
func (d *detectors) checkDecision(sig string) (string, bool) {
	if sig == d.lastDecision {
		d.decisionStreak++
	} else {
		d.lastDecision = sig
		d.decisionStreak = 1
	}
	if d.decisionStreak >= sameDecisionLimit {
		return "repeated action: same decision 5 consecutive steps", true
	}
	return "", false
}

// checkDOM records the step's DOM hash.
func (d *detectors) checkDOM(hash string) (string, bool) {
	if hash == d.lastDOMHash {
		d.domStreak++
	} else {
		d.lastDOMHash = hash
		d.domStreak = 1
	}
	if d.domStreak >= sameDOMLimit {
		return "screen unchanged: same DOM signature 10 consecutive steps", true
	}
	return "", false
}

// checkNoDOM records a failed snapshot.
func (d *detectors) checkNoDOM() (string, bool) {
	d.noDOMStreak++
	if d.noDOMStreak >= noDOMLimit {
		return "DOM unreachable: 3 consecutive snapshot failures", true
	}
	return "", false
}

func (d *detectors) domOK() { d.noDOMStreak = 0 }

// checkLoginGate fires when an auth gate keeps appearing and the test data
// carries no credentials to pass it.
func (d *detectors) checkLoginGate(listing string, testData json.RawMessage) (string, bool) {
	if !looksLikeLoginGate(listing) || hasCredentials(testData) {
		d.loginGateStreak = 0
		return "", false
	}
	d.loginGateStreak++
	if d.loginGateStreak >= loginGateLimit {
		return "login gate without credentials: provide credentials in test_data and rerun", true
	}
	return "", false
}

// checkRecovery records a stale-recovery failure.
func (d *detectors) checkRecovery(failed bool) (string, bool) {
	if !failed {
		d.recoveryFailures = 0
		return "", false
	}
	d.recoveryFailures++
	if d.recoveryFailures > recoveryFailureLimit {
		return "stale-ref recovery failed more than twice in a row", true
	}
	return "", false
}

var loginLexicon = []string{"log in", "login", "sign in", "signin", "sign up"}

func looksLikeLoginGate(listing string) bool {
	l := strings.ToLower(listing)
	hasPassword := strings.Contains(l, "password")
	for _, w := range loginLexicon {
		if strings.Contains(l, w) && hasPassword {
			return true
		}
	}
	return false
}

func hasCredentials(testData json.RawMessage) bool {
	if len(testData) == 0 {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(testData, &m); err != nil {
		return false
	}
	for k := range m {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "password") || strings.Contains(lk, "credential") {
			return true
		}
	}
	return false
}
