package action

import "fmt"

// Evidence is the page-level state sample the executor takes before the
// action and at every probe. It is deliberately cheap: one evaluate per
// sample, no layout thrash.
type Evidence struct {
	URL              string   `json:"url"`
	DomHash          string   `json:"dom_hash"`
	TextDigest       string   `json:"text_digest"` // <=4000 chars
	NumberTokens     []string `json:"number_tokens"`
	LiveRegionText   string   `json:"live_region_text"`
	CounterText      string   `json:"counter_text"`
	StatusText       string   `json:"status_text"`
	ListCount        int      `json:"list_count"`
	InteractiveCount int      `json:"interactive_count"`
	LoginVisible     bool     `json:"login_visible"`
	LogoutVisible    bool     `json:"logout_visible"`
	ScrollX          float64  `json:"scroll_x"`
	ScrollY          float64  `json:"scroll_y"`
	Focus            string   `json:"focus"` // active-element signature
}

// TargetState is the element-level sample taken alongside Evidence.
type TargetState struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Value   string `json:"value"`
	Focused bool   `json:"focused"`
}

// Compare derives the change flags between two samples. fillValue is the
// string the action wrote, used for target_value_matches on fill.
func Compare(kind Kind, fillValue string, before, after *Evidence, bt, at *TargetState) StateChange {
	var sc StateChange
	if before == nil || after == nil {
		return sc
	}

	sc.URLChanged = before.URL != after.URL
	sc.DOMChanged = before.DomHash != after.DomHash
	sc.FocusChanged = before.Focus != after.Focus
	sc.CounterChanged = before.CounterText != after.CounterText ||
		before.LiveRegionText != after.LiveRegionText
	sc.NumberTokensChanged = !equalStrings(before.NumberTokens, after.NumberTokens)
	sc.StatusTextChanged = before.StatusText != after.StatusText
	sc.ListCountChanged = before.ListCount != after.ListCount
	sc.InteractiveCountChanged = before.InteractiveCount != after.InteractiveCount
	sc.AuthStateChanged = before.LoginVisible != after.LoginVisible ||
		before.LogoutVisible != after.LogoutVisible
	sc.TextDigestChanged = before.TextDigest != after.TextDigest

	if bt != nil && at != nil {
		sc.TargetVisibilityChanged = bt.Visible != at.Visible || bt.Found != at.Found
		sc.TargetValueChanged = bt.Value != at.Value
		sc.TargetFocusChanged = bt.Focused != at.Focused
		if kind == KindFill && fillValue != "" {
			sc.TargetValueMatches = at.Value == fillValue
		}
	}

	sc.EvidenceChanged = sc.CounterChanged || sc.NumberTokensChanged ||
		sc.StatusTextChanged || sc.ListCountChanged ||
		sc.InteractiveCountChanged || sc.AuthStateChanged ||
		sc.TextDigestChanged

	return sc
}

// Effective applies the per-kind effectiveness predicate.
func Effective(kind Kind, sc StateChange) bool {
	switch kind {
	case KindFill:
		return sc.TargetValueChanged || sc.TargetValueMatches || sc.EvidenceChanged
	case KindClick:
		return sc.URLChanged || sc.DOMChanged || sc.TargetVisibilityChanged || sc.EvidenceChanged
	case KindPress:
		return sc.URLChanged || sc.DOMChanged || sc.FocusChanged ||
			sc.TargetFocusChanged || sc.EvidenceChanged
	case KindHover:
		return sc.TargetVisibilityChanged || sc.FocusChanged || sc.DOMChanged || sc.EvidenceChanged
	default:
		// Scroll, select, drag and the rest: any observed change counts.
		return sc.Any()
	}
}

// FillValue extracts the string a fill/press action carries.
func FillValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
