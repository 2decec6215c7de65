// CLAUDE:SUMMARY Snapshot and element types, snapshot/ref ID formats, and the bounded per-session snapshot store.
// Package snapshot captures immutable views of a page's interactive DOM.
//
// A snapshot enumerates interactive elements across every frame and shadow
// root, stamps each with a durable data-gaia-dom-ref attribute, and exposes
// them under opaque ref ids. Refs are the only element identifiers that
// cross the host boundary: actions resolve (snapshot_id, ref_id) back to
// live elements through the stamped attribute, never through raw selectors.
package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

// BoundingBox is an element's layout rectangle in page coordinates.
type BoundingBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// ElementMeta is one enumerated element. It is a descriptor, never a live
// handle; resolution back to the page goes through DomRef.
type ElementMeta struct {
	RefID        string            `json:"ref_id"`
	DomRef       string            `json:"dom_ref"`
	Tag          string            `json:"tag"`
	Text         string            `json:"text"`
	Selector     string            `json:"selector"`      // informational only
	FullSelector string            `json:"full_selector"` // frame chain + selector
	FrameIndex   int               `json:"frame_index"`
	TabIndex     int               `json:"tab_index"`
	Attributes   map[string]string `json:"attributes"`
	Box          BoundingBox       `json:"bounding_box"`
	ElementType  string            `json:"element_type"` // input|button|link|clickable|semantic
	Visible      bool              `json:"visible"`
	signal       int
}

// Role returns the element's effective role: explicit role attribute first,
// then the implicit role for its tag.
func (e *ElementMeta) Role() string {
	if r := e.Attributes["role"]; r != "" {
		return r
	}
	switch e.Tag {
	case "a":
		return "link"
	case "button":
		return "button"
	case "input", "textarea":
		return "textbox"
	case "select":
		return "combobox"
	case "summary":
		return "button"
	}
	return ""
}

// Snapshot is an immutable capture of the DOM at one moment.
type Snapshot struct {
	ID         string                  `json:"snapshot_id"`
	Epoch      uint64                  `json:"epoch"`
	DomHash    string                  `json:"dom_hash"`
	TabIndex   int                     `json:"tab_index"`
	CapturedAt int64                   `json:"captured_at"` // unix ms
	URL        string                  `json:"url"`
	Elements   []*ElementMeta          `json:"elements"`
	ByRef      map[string]*ElementMeta `json:"-"`
}

// Element returns the element for a ref id, or nil.
func (s *Snapshot) Element(refID string) *ElementMeta {
	return s.ByRef[refID]
}

// FormatID builds a snapshot id: {session}:{epoch}:{dom_hash_prefix12}.
func FormatID(sessionID string, epoch uint64, domHash string) string {
	prefix := domHash
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("%s:%d:%s", sessionID, epoch, prefix)
}

// ParsedID is the decoded form of a snapshot id.
type ParsedID struct {
	SessionID  string
	Epoch      uint64
	HashPrefix string
}

// ParseID decodes a snapshot id. The session part may itself contain colons;
// epoch and hash prefix are the last two segments.
func ParseID(id string) (ParsedID, error) {
	last := strings.LastIndex(id, ":")
	if last < 0 {
		return ParsedID{}, fmt.Errorf("snapshot: malformed id %q", id)
	}
	prev := strings.LastIndex(id[:last], ":")
	if prev < 0 {
		return ParsedID{}, fmt.Errorf("snapshot: malformed id %q", id)
	}
	epoch, err := strconv.ParseUint(id[prev+1:last], 10, 64)
	if err != nil {
		return ParsedID{}, fmt.Errorf("snapshot: bad epoch in id %q: %w", id, err)
	}
	if id[:prev] == "" {
		return ParsedID{}, fmt.Errorf("snapshot: empty session in id %q", id)
	}
	return ParsedID{
		SessionID:  id[:prev],
		Epoch:      epoch,
		HashPrefix: id[last+1:],
	}, nil
}

// FormatRef builds a ref id: t{tab}-f{frame}-e{index}.
func FormatRef(tab, frame, index int) string {
	return fmt.Sprintf("t%d-f%d-e%d", tab, frame, index)
}

// ParsedRef is the decoded form of a ref id.
type ParsedRef struct {
	Tab   int
	Frame int
	Index int
}

// ParseRef decodes a ref id of the form t{tab}-f{frame}-e{index}.
func ParseRef(refID string) (ParsedRef, error) {
	var r ParsedRef
	n, err := fmt.Sscanf(refID, "t%d-f%d-e%d", &r.Tab, &r.Frame, &r.Index)
	if err != nil || n != 3 {
		return ParsedRef{}, fmt.Errorf("snapshot: malformed ref id %q", refID)
	}
	if r.Tab < 0 || r.Frame < 0 || r.Index < 0 {
		return ParsedRef{}, fmt.Errorf("snapshot: negative component in ref id %q", refID)
	}
	return r, nil
}
