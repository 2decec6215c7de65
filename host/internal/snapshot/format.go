package snapshot

import (
	"fmt"
	"strings"
)

// Format selects how a snapshot is rendered for the caller.
type Format string

const (
	FormatRefs Format = "ref"  // JSON element map, the default
	FormatAI   Format = "ai"   // role-tree text tuned for VLM prompts
	FormatAria Format = "aria" // aria-snapshot style indented tree
	FormatRole Format = "role" // role tree filtered to roled elements
)

// ParseFormat validates a format string; empty means FormatRefs.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatRefs:
		return FormatRefs, nil
	case FormatAI, FormatAria, FormatRole:
		return Format(s), nil
	}
	return "", fmt.Errorf("snapshot: unknown format %q", s)
}

// RenderOptions controls text rendering. Filtering affects only the text;
// the underlying ref map is never altered by rendering.
type RenderOptions struct {
	InteractiveOnly bool
	Compact         bool
	Limit           int // max elements; 0 = all
	MaxChars        int // char budget; 0 = DefaultMaxChars
}

// DefaultMaxChars caps text renderings unless the caller asks otherwise.
const DefaultMaxChars = 48000

// Render produces the textual form of a snapshot for ai/aria/role formats.
// FormatRefs has no text rendering; callers serialize the struct instead.
func Render(s *Snapshot, f Format, opts RenderOptions) string {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}

	var b strings.Builder
	n := 0
	for _, e := range s.Elements {
		if opts.Limit > 0 && n >= opts.Limit {
			break
		}
		line, ok := renderLine(e, f, opts)
		if !ok {
			continue
		}
		if b.Len()+len(line)+1 > opts.MaxChars {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
		n++
	}
	return b.String()
}

func renderLine(e *ElementMeta, f Format, opts RenderOptions) (string, bool) {
	role := e.Role()
	text := truncate(normalizeSpace(e.Text), 80)

	switch f {
	case FormatRole:
		if role == "" {
			return "", false
		}
		return fmt.Sprintf("%s %q [%s]", role, text, e.RefID), true

	case FormatAria:
		// Indent by frame depth, aria-snapshot style.
		if role == "" && opts.InteractiveOnly {
			return "", false
		}
		name := role
		if name == "" {
			name = e.Tag
		}
		indent := strings.Repeat("  ", e.FrameIndex)
		if text == "" {
			return fmt.Sprintf("%s- %s [%s]", indent, name, e.RefID), true
		}
		return fmt.Sprintf("%s- %s %q [%s]", indent, name, text, e.RefID), true

	default: // FormatAI
		if opts.InteractiveOnly && e.ElementType == "semantic" {
			return "", false
		}
		if opts.Compact {
			return fmt.Sprintf("[%s] <%s> %q", e.RefID, e.Tag, text), true
		}
		var extra strings.Builder
		for _, key := range []string{"role", "type", "placeholder", "aria-label", "name"} {
			if v := e.Attributes[key]; v != "" {
				fmt.Fprintf(&extra, " %s=%s", key, truncate(v, 40))
			}
		}
		return fmt.Sprintf("[%s] <%s> %q%s", e.RefID, e.Tag, text, extra.String()), true
	}
}

// Listing renders the compact element listing the goal loop puts in front
// of the VLM: one line per element, capped at limit rows.
func Listing(s *Snapshot, limit int) string {
	if limit <= 0 {
		limit = 50
	}
	var b strings.Builder
	for i, e := range s.Elements {
		if i >= limit {
			fmt.Fprintf(&b, "… and %d more elements\n", len(s.Elements)-limit)
			break
		}
		fmt.Fprintf(&b, "[%s] <%s> %q", e.RefID, e.Tag, truncate(normalizeSpace(e.Text), 60))
		if r := e.Role(); r != "" {
			fmt.Fprintf(&b, " role=%s", r)
		}
		for _, key := range []string{"type", "placeholder", "aria-label"} {
			if v := e.Attributes[key]; v != "" {
				fmt.Fprintf(&b, " %s=%s", key, truncate(v, 40))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
