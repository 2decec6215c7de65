package host

import (
	"sync"
	"testing"
)

func TestDialogArming_Lifecycle(t *testing.T) {
	s := &Session{}

	armed, accept, text := s.armedDialog()
	if armed || accept || text != "" {
		t.Fatalf("fresh session armed = %v accept = %v text = %q", armed, accept, text)
	}

	s.armDialog(true, "yes please")
	armed, accept, text = s.armedDialog()
	if !armed || !accept || text != "yes please" {
		t.Fatalf("after arm: armed = %v accept = %v text = %q", armed, accept, text)
	}

	s.armChooser([]string{"data/upload.pdf"})
	if got := s.armedChooser(); len(got) != 1 || got[0] != "data/upload.pdf" {
		t.Fatalf("armedChooser = %v", got)
	}

	s.disarm()
	armed, accept, text = s.armedDialog()
	if armed || accept || text != "" {
		t.Fatalf("after disarm: armed = %v accept = %v text = %q", armed, accept, text)
	}
	if got := s.armedChooser(); got != nil {
		t.Fatalf("armedChooser after disarm = %v", got)
	}
}

// Event handlers read the arming state off the page event goroutine while
// the dispatch path rewrites it; both sides must go through armMu.
func TestDialogArming_ConcurrentAccess(t *testing.T) {
	s := &Session{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.armDialog(j%2 == 0, "prompt")
				s.armChooser([]string{"a.txt", "b.txt"})
				s.disarm()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				armed, accept, text := s.armedDialog()
				if !armed && (accept || text != "") {
					t.Error("disarmed session kept accept/text state")
				}
				_ = s.armedChooser()
			}
		}()
	}
	wg.Wait()
}

func TestSameURL(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.com/", "https://example.com", true},
		{"https://example.com/page#section", "https://example.com/page", true},
		{"  https://example.com/page  ", "https://example.com/page", true},
		{"https://example.com/a", "https://example.com/b", false},
		{"https://example.com/page?q=1", "https://example.com/page", false},
		{"", "", true},
	}
	for _, tt := range tests {
		if got := sameURL(tt.a, tt.b); got != tt.want {
			t.Errorf("sameURL(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
