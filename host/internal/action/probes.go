package action

import (
	"strings"
	"time"

	"github.com/hazyhaar/gaia/host/internal/snapshot"
)

// Probe schedules. Submit-like clicks navigate away; waiting longer than one
// short probe only races the navigation, so they get the short schedule with
// verification relaxed. Everything else gets three widening probes.
var (
	submitSchedule  = []time.Duration{250 * time.Millisecond}
	defaultSchedule = []time.Duration{350 * time.Millisecond, 700 * time.Millisecond, 1500 * time.Millisecond}
)

// submitLexicon matches visible button text that commits a form.
var submitLexicon = []string{
	"log in", "login", "sign in", "signin", "log on",
	"sign up", "signup", "register", "create account",
	"submit", "continue", "confirm", "apply", "save", "send",
	"next", "checkout", "place order", "search",
}

// SubmitLike reports whether a click on this element is expected to submit
// a form: an explicit submit control, or visible text in the submit lexicon.
func SubmitLike(kind Kind, meta *snapshot.ElementMeta) bool {
	if kind != KindClick || meta == nil {
		return false
	}
	if meta.Attributes["type"] == "submit" {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(meta.Text))
	if text == "" || len(text) > 40 {
		return false
	}
	for _, w := range submitLexicon {
		if text == w || strings.HasPrefix(text, w+" ") || strings.HasSuffix(text, " "+w) {
			return true
		}
	}
	return false
}

// Schedule returns the probe wait list for one action.
func Schedule(submitLike bool) []time.Duration {
	if submitLike {
		return submitSchedule
	}
	return defaultSchedule
}

// ScrollPos names the forced scroll positions of the last-resort probe.
type ScrollPos string

const (
	ScrollTop ScrollPos = "top"
	ScrollMid ScrollPos = "mid"
	ScrollBot ScrollPos = "bottom"
)

// scrollProbes is the last-resort sequence for click/press actions that
// show no effect after the wait schedule: the change may have rendered
// off-viewport.
var scrollProbes = []ScrollPos{ScrollTop, ScrollMid, ScrollBot}
