// CLAUDE:SUMMARY Frame-walking snapshot collector: runs the embedded collect.js per document, dedups, caps by signal, assigns refs, hashes.
package snapshot

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-rod/rod"
)

//go:embed collect.js
var collectJS string

// maxFrameDepth bounds iframe nesting during the walk. Deeper frames are
// almost always ad sandboxes.
const maxFrameDepth = 4

// Collector captures snapshots from a live page.
type Collector struct {
	// MaxElements caps the element list; overflow keeps the top by signal
	// score. Default 2200.
	MaxElements int

	Logger *slog.Logger
}

func (c *Collector) defaults() {
	if c.MaxElements <= 0 {
		c.MaxElements = 2200
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type rawRecord struct {
	DomRef      string            `json:"dom_ref"`
	Tag         string            `json:"tag"`
	Text        string            `json:"text"`
	Selector    string            `json:"selector"`
	Attributes  map[string]string `json:"attributes"`
	ElementType string            `json:"element_type"`
	Visible     bool              `json:"visible"`
	Box         BoundingBox       `json:"box"`
}

// frameTarget is one document to collect from: the main page or an iframe,
// with the selector chain that reaches it from the top document.
type frameTarget struct {
	page  *rod.Page
	chain string
}

// Capture enumerates interactive elements across the main document and all
// reachable iframes, stamps dom refs, and assembles an immutable Snapshot.
// Shadow roots are traversed inside collect.js per document.
func (c *Collector) Capture(ctx context.Context, page *rod.Page, sessionID string, epoch uint64, tabIndex int) (*Snapshot, error) {
	c.defaults()

	url := ""
	if info, err := page.Info(); err == nil {
		url = info.URL
	}

	frames := c.walkFrames(ctx, page)

	var elements []*ElementMeta
	for frameIndex, ft := range frames {
		recs, err := collectFrame(ctx, ft.page)
		if err != nil {
			// A dead or cross-origin frame loses its elements, not the
			// whole snapshot.
			c.Logger.Debug("snapshot: frame collect failed",
				"session", sessionID, "frame", frameIndex, "error", err)
			continue
		}
		for _, r := range recs {
			full := r.Selector
			if ft.chain != "" {
				full = ft.chain + " >> " + r.Selector
			}
			elements = append(elements, &ElementMeta{
				DomRef:       r.DomRef,
				Tag:          r.Tag,
				Text:         truncate(r.Text, 180),
				Selector:     r.Selector,
				FullSelector: full,
				FrameIndex:   frameIndex,
				TabIndex:     tabIndex,
				Attributes:   r.Attributes,
				Box:          r.Box,
				ElementType:  r.ElementType,
				Visible:      r.Visible,
				signal:       signalScore(r),
			})
		}
	}

	elements = dedupByDomRef(elements)
	elements = capBySignal(elements, c.MaxElements)

	byRef := make(map[string]*ElementMeta, len(elements))
	for i, e := range elements {
		e.RefID = FormatRef(tabIndex, e.FrameIndex, i)
		byRef[e.RefID] = e
	}

	hash := Hash(elements)
	s := &Snapshot{
		ID:         FormatID(sessionID, epoch, hash),
		Epoch:      epoch,
		DomHash:    hash,
		TabIndex:   tabIndex,
		CapturedAt: time.Now().UnixMilli(),
		URL:        url,
		Elements:   elements,
		ByRef:      byRef,
	}

	c.Logger.Debug("snapshot: captured",
		"session", sessionID, "epoch", epoch, "elements", len(elements),
		"frames", len(frames), "hash", hash[:12])
	return s, nil
}

// walkFrames returns the main document plus every reachable iframe document,
// breadth-first, each with its selector chain. Frame index 0 is always the
// main document.
func (c *Collector) walkFrames(ctx context.Context, page *rod.Page) []frameTarget {
	frames := []frameTarget{{page: page}}

	type level struct {
		ft    frameTarget
		depth int
	}
	queue := []level{{ft: frames[0]}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxFrameDepth {
			continue
		}

		iframes, err := cur.ft.page.Context(ctx).Timeout(3 * time.Second).Elements("iframe")
		if err != nil {
			continue
		}
		for i, el := range iframes {
			sub, err := el.Frame()
			if err != nil {
				continue
			}
			chain := fmt.Sprintf("iframe:nth-of-type(%d)", i+1)
			if cur.ft.chain != "" {
				chain = cur.ft.chain + " >> " + chain
			}
			ft := frameTarget{page: sub, chain: chain}
			frames = append(frames, ft)
			queue = append(queue, level{ft: ft, depth: cur.depth + 1})
		}
	}
	return frames
}

// FramePages returns the frame documents of page in collector order:
// index 0 is the main document. Action resolution uses this so a ref's
// frame index means the same document it meant at capture time.
func FramePages(ctx context.Context, page *rod.Page) []*rod.Page {
	c := &Collector{}
	c.defaults()
	fts := c.walkFrames(ctx, page)
	out := make([]*rod.Page, len(fts))
	for i, ft := range fts {
		out[i] = ft.page
	}
	return out
}

func collectFrame(ctx context.Context, page *rod.Page) ([]rawRecord, error) {
	res, err := page.Context(ctx).Timeout(10 * time.Second).Eval(collectJS)
	if err != nil {
		return nil, fmt.Errorf("snapshot: collect eval: %w", err)
	}
	var recs []rawRecord
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &recs); err != nil {
		return nil, fmt.Errorf("snapshot: decode collect result: %w", err)
	}
	return recs, nil
}

// signalScore rates an element's usefulness: visible text plus strong
// attributes. Used for dedup preference and the overflow cap.
func signalScore(r rawRecord) int {
	score := len(r.Text)
	for _, key := range []string{"id", "name", "data-testid", "aria-label"} {
		if r.Attributes[key] != "" {
			score += 50
		}
	}
	return score
}

// dedupByDomRef keeps one entry per dom_ref, preferring the higher signal.
// Duplicates appear when the same element is reachable through both the
// light DOM scan and a shadow-root scan.
func dedupByDomRef(elements []*ElementMeta) []*ElementMeta {
	best := make(map[string]*ElementMeta, len(elements))
	order := make([]string, 0, len(elements))
	for _, e := range elements {
		prev, seen := best[e.DomRef]
		if !seen {
			best[e.DomRef] = e
			order = append(order, e.DomRef)
			continue
		}
		if e.signal > prev.signal {
			best[e.DomRef] = e
		}
	}
	out := make([]*ElementMeta, 0, len(order))
	for _, ref := range order {
		out = append(out, best[ref])
	}
	return out
}

// capBySignal keeps at most max elements, preferring higher signal but
// preserving document order among the survivors.
func capBySignal(elements []*ElementMeta, max int) []*ElementMeta {
	if len(elements) <= max {
		return elements
	}
	idx := make([]int, len(elements))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return elements[idx[a]].signal > elements[idx[b]].signal
	})
	keep := make(map[int]bool, max)
	for _, i := range idx[:max] {
		keep[i] = true
	}
	out := make([]*ElementMeta, 0, max)
	for i, e := range elements {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}
