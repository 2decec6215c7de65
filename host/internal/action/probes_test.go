package action

import (
	"testing"
	"time"

	"github.com/hazyhaar/gaia/host/internal/snapshot"
)

func TestSubmitLike(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		meta *snapshot.ElementMeta
		want bool
	}{
		{
			name: "explicit submit type",
			kind: KindClick,
			meta: &snapshot.ElementMeta{Tag: "button", Attributes: map[string]string{"type": "submit"}},
			want: true,
		},
		{
			name: "login text",
			kind: KindClick,
			meta: &snapshot.ElementMeta{Tag: "button", Text: "Log in", Attributes: map[string]string{}},
			want: true,
		},
		{
			name: "sign up text",
			kind: KindClick,
			meta: &snapshot.ElementMeta{Tag: "a", Text: "Sign up", Attributes: map[string]string{}},
			want: true,
		},
		{
			name: "ordinary link",
			kind: KindClick,
			meta: &snapshot.ElementMeta{Tag: "a", Text: "Documentation", Attributes: map[string]string{}},
			want: false,
		},
		{
			name: "long prose never submits",
			kind: KindClick,
			meta: &snapshot.ElementMeta{Tag: "div", Text: "Please save your work before continuing to the next page", Attributes: map[string]string{}},
			want: false,
		},
		{
			name: "fill is never submit-like",
			kind: KindFill,
			meta: &snapshot.ElementMeta{Tag: "input", Attributes: map[string]string{"type": "submit"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubmitLike(tt.kind, tt.meta); got != tt.want {
				t.Fatalf("SubmitLike = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchedule(t *testing.T) {
	long := Schedule(false)
	want := []time.Duration{350 * time.Millisecond, 700 * time.Millisecond, 1500 * time.Millisecond}
	if len(long) != len(want) {
		t.Fatalf("default schedule = %v", long)
	}
	for i := range want {
		if long[i] != want[i] {
			t.Fatalf("default schedule[%d] = %v, want %v", i, long[i], want[i])
		}
	}

	short := Schedule(true)
	if len(short) != 1 || short[0] != 250*time.Millisecond {
		t.Fatalf("submit schedule = %v, want [250ms]", short)
	}
}
