package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// signatureTextLimit bounds the text contribution of one element to the
// dom hash. Longer text still distinguishes elements in the snapshot
// itself, just not in the hash.
const signatureTextLimit = 80

// Signature returns the canonical per-element string the dom hash is
// computed over. Only semantic fields participate: two captures of the
// same page hash equal even when element order differs.
func Signature(e *ElementMeta) string {
	var b strings.Builder
	b.WriteString(e.Tag)
	b.WriteByte('|')
	b.WriteString(truncate(normalizeSpace(e.Text), signatureTextLimit))
	for _, key := range []string{"id", "name", "data-testid", "role", "type", "href", "placeholder"} {
		b.WriteByte('|')
		b.WriteString(e.Attributes[key])
	}
	return b.String()
}

// Hash computes the SHA-256 dom hash over the sorted element signatures.
func Hash(elements []*ElementMeta) string {
	sigs := make([]string, len(elements))
	for i, e := range elements {
		sigs[i] = Signature(e)
	}
	sort.Strings(sigs)

	h := sha256.New()
	for _, s := range sigs {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeSpace collapses every whitespace run to a single space and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
