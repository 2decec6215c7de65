package host

import (
	"errors"
	"testing"
)

func TestMatchTargetID(t *testing.T) {
	session := []string{"AAA111", "BBB222"}
	all := []string{"AAA111", "BBB222", "BBB999", "CCC333"}

	tests := []struct {
		name    string
		sel     string
		want    string
		wantErr bool
	}{
		{name: "exact", sel: "AAA111", want: "AAA111"},
		{name: "unique prefix", sel: "AAA", want: "AAA111"},
		{name: "no match", sel: "ZZZ", wantErr: true},
		{name: "other session target", sel: "CCC", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchTargetID(tt.sel, session, all)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("matchTargetID(%q) = %q, want error", tt.sel, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchTargetID(%q): %v", tt.sel, err)
			}
			if got != tt.want {
				t.Errorf("matchTargetID(%q) = %q, want %q", tt.sel, got, tt.want)
			}
		})
	}
}

func TestMatchTargetID_AmbiguousPrefix(t *testing.T) {
	session := []string{"BBB222"}
	all := []string{"BBB222", "BBB999"}

	_, err := matchTargetID("BBB", session, all)
	var ambiguous *AmbiguousTargetError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousTargetError, got %v", err)
	}
	if len(ambiguous.Matches) != 2 {
		t.Errorf("Matches = %v, want 2 entries", ambiguous.Matches)
	}
	if ambiguous.Prefix != "BBB" {
		t.Errorf("Prefix = %q, want BBB", ambiguous.Prefix)
	}
}

// The ambiguity check runs against the browser-wide list: a prefix unique
// within the session but shared with a tab the SUT opened is still ambiguous.
func TestMatchTargetID_BrowserWideAmbiguity(t *testing.T) {
	session := []string{"DDD111"}
	all := []string{"DDD111", "DDD222"}

	if _, err := matchTargetID("DDD", session, all); err == nil {
		t.Fatal("expected ambiguity against browser-wide targets")
	}
	if got, err := matchTargetID("DDD111", session, all); err != nil || got != "DDD111" {
		t.Fatalf("exact id should bypass prefix matching: got %q, %v", got, err)
	}
}
