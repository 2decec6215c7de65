package snapshot

import (
	"strings"
	"testing"
)

func TestFormatParseID(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	id := FormatID("s1", 7, hash)
	if want := "s1:7:" + hash[:12]; id != want {
		t.Fatalf("FormatID = %q, want %q", id, want)
	}

	p, err := ParseID(id)
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if p.SessionID != "s1" || p.Epoch != 7 || p.HashPrefix != hash[:12] {
		t.Fatalf("ParseID = %+v", p)
	}
}

func TestParseIDSessionWithColons(t *testing.T) {
	p, err := ParseID("tenant:alpha:3:abcdef123456")
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if p.SessionID != "tenant:alpha" {
		t.Fatalf("SessionID = %q, want %q", p.SessionID, "tenant:alpha")
	}
	if p.Epoch != 3 {
		t.Fatalf("Epoch = %d, want 3", p.Epoch)
	}
}

func TestParseIDMalformed(t *testing.T) {
	for _, id := range []string{"", "nocolons", "only:one", "s1:notanumber:abc", ":1:abc"} {
		if _, err := ParseID(id); err == nil {
			t.Errorf("ParseID(%q): want error", id)
		}
	}
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef("t1-f2-e33")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if r.Tab != 1 || r.Frame != 2 || r.Index != 33 {
		t.Fatalf("ParseRef = %+v", r)
	}

	for _, bad := range []string{"", "t1-f2", "x1-f2-e3", "t1-f2-e"} {
		if _, err := ParseRef(bad); err == nil {
			t.Errorf("ParseRef(%q): want error", bad)
		}
	}
}

func elem(tag, text string, attrs map[string]string) *ElementMeta {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &ElementMeta{Tag: tag, Text: text, Attributes: attrs}
}

func TestHashStableUnderReordering(t *testing.T) {
	a := elem("button", "Save", map[string]string{"id": "save"})
	b := elem("a", "Home", map[string]string{"href": "/"})
	c := elem("input", "", map[string]string{"name": "q", "type": "text"})

	h1 := Hash([]*ElementMeta{a, b, c})
	h2 := Hash([]*ElementMeta{c, a, b})
	if h1 != h2 {
		t.Fatalf("hash not stable under reordering: %s vs %s", h1, h2)
	}
}

func TestHashChangesWithSemanticFields(t *testing.T) {
	base := []*ElementMeta{elem("button", "Save", nil)}
	changed := []*ElementMeta{elem("button", "Delete", nil)}
	if Hash(base) == Hash(changed) {
		t.Fatal("hash ignored a text change")
	}
}

func TestHashNormalizesWhitespaceAndTruncates(t *testing.T) {
	a := elem("p", "hello   world", nil)
	b := elem("p", "hello\n\tworld", nil)
	if Hash([]*ElementMeta{a}) != Hash([]*ElementMeta{b}) {
		t.Fatal("whitespace runs should hash equal")
	}

	long := strings.Repeat("x", 300)
	c := elem("p", long, nil)
	d := elem("p", long+"tail", nil)
	if Hash([]*ElementMeta{c}) != Hash([]*ElementMeta{d}) {
		t.Fatal("text beyond the signature limit should not affect the hash")
	}
}

func TestSignalScoreOrdering(t *testing.T) {
	plain := rawRecord{Tag: "div", Text: "x"}
	strong := rawRecord{Tag: "button", Text: "x", Attributes: map[string]string{"id": "b1"}}
	if signalScore(strong) <= signalScore(plain) {
		t.Fatal("strong attributes should outrank bare text")
	}
}

func TestDedupByDomRefKeepsHighestSignal(t *testing.T) {
	weak := &ElementMeta{DomRef: "r1", Text: "a", signal: 1}
	strong := &ElementMeta{DomRef: "r1", Text: "a long label", signal: 12}
	other := &ElementMeta{DomRef: "r2", Text: "b", signal: 1}

	out := dedupByDomRef([]*ElementMeta{weak, other, strong})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != strong {
		t.Fatal("dedup kept the weaker copy")
	}
	if out[1] != other {
		t.Fatal("dedup broke document order")
	}
}

func TestCapBySignalPreservesOrder(t *testing.T) {
	els := []*ElementMeta{
		{DomRef: "a", signal: 1},
		{DomRef: "b", signal: 9},
		{DomRef: "c", signal: 5},
		{DomRef: "d", signal: 7},
	}
	out := capBySignal(els, 2)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].DomRef != "b" || out[1].DomRef != "d" {
		t.Fatalf("kept %s,%s want b,d in document order", out[0].DomRef, out[1].DomRef)
	}
}
