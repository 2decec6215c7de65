// CLAUDE:SUMMARY rod implementation of the executor's Target: locator query, reveal, kind primitives, evidence sampling, scroll probes.
package host

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/gaia/host/internal/action"
	"github.com/hazyhaar/gaia/host/internal/snapshot"
)

//go:embed evidence.js
var evidenceJS string

// primitiveTimeout bounds one kind-specific browser primitive.
const primitiveTimeout = 10 * time.Second

// rodTarget drives one session's current page for the executor. It is
// built per action while the session lock is held.
type rodTarget struct {
	s      *Session
	page   *rod.Page
	frames []*rod.Page
}

func (s *Session) newTarget(ctx context.Context) (*rodTarget, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	return &rodTarget{
		s:      s,
		page:   page,
		frames: snapshot.FramePages(ctx, page),
	}, nil
}

// rodHandle is one resolved element candidate.
type rodHandle struct {
	el *rod.Element
	cx float64
	cy float64
}

func (h *rodHandle) Center() (float64, float64) { return h.cx, h.cy }

func (t *rodTarget) CurrentTabIndex() int { return t.s.current }

func (t *rodTarget) FrameCount(context.Context) (int, error) {
	return len(t.frames), nil
}

func (t *rodTarget) frame(i int) (*rod.Page, error) {
	if i < 0 || i >= len(t.frames) {
		return nil, fmt.Errorf("host: frame %d out of range", i)
	}
	return t.frames[i], nil
}

func (t *rodTarget) Locate(ctx context.Context, frameIndex int, domRef string) ([]action.Handle, error) {
	fr, err := t.frame(frameIndex)
	if err != nil {
		return nil, err
	}
	els, err := fr.Context(ctx).Timeout(primitiveTimeout).Elements(
		fmt.Sprintf(`[data-gaia-dom-ref=%q]`, domRef))
	if err != nil {
		return nil, evalErr(err, "locate")
	}
	handles := make([]action.Handle, 0, len(els))
	for _, el := range els {
		h := &rodHandle{el: el}
		if box, err := boundingBox(ctx, el); err == nil {
			h.cx, h.cy = box.CenterX, box.CenterY
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Reveal scrolls the element inside its nearest scrollable ancestor with a
// 24px safety margin, falling back to scrollIntoView center.
func (t *rodTarget) Reveal(ctx context.Context, h action.Handle) error {
	el := h.(*rodHandle).el
	_, err := el.Context(ctx).Timeout(primitiveTimeout).Eval(`() => {
		const margin = 24;
		let node = this.parentElement;
		while (node) {
			const cs = getComputedStyle(node);
			const scrollable = /(auto|scroll)/.test(cs.overflowY + cs.overflowX) &&
				node.scrollHeight > node.clientHeight;
			if (scrollable) {
				const nr = node.getBoundingClientRect();
				const er = this.getBoundingClientRect();
				if (er.top < nr.top + margin) {
					node.scrollTop -= (nr.top + margin - er.top);
				} else if (er.bottom > nr.bottom - margin) {
					node.scrollTop += (er.bottom - (nr.bottom - margin));
				}
				return;
			}
			node = node.parentElement;
		}
		this.scrollIntoView({block: "center", inline: "center"});
	}`)
	return evalErr(err, "reveal")
}

func (t *rodTarget) Perform(ctx context.Context, h action.Handle, req *action.Request) error {
	el := h.(*rodHandle).el.Context(ctx).Timeout(primitiveTimeout)

	switch req.Kind {
	case action.KindClick:
		return t.click(el, req.Options)
	case action.KindFill:
		return t.fill(el, action.FillValue(req.Value))
	case action.KindPress:
		return t.press(el, action.FillValue(req.Value))
	case action.KindHover:
		return el.Hover()
	case action.KindSelect:
		return t.selectOption(el, req.Value)
	case action.KindScroll, action.KindScrollIntoView:
		_, err := el.Eval(`() => this.scrollIntoView({block: "center"})`)
		return evalErr(err, "scroll")
	case action.KindDragAndDrop:
		return t.drag(el, req.Value, false)
	case action.KindDragSlider:
		return t.drag(el, req.Value, true)
	default:
		return fmt.Errorf("host: unsupported kind %q", req.Kind)
	}
}

func (t *rodTarget) click(el *rod.Element, opts action.Options) error {
	button := proto.InputMouseButtonLeft
	switch opts.Button {
	case "right":
		button = proto.InputMouseButtonRight
	case "middle":
		button = proto.InputMouseButtonMiddle
	}
	count := 1
	if opts.DoubleClick {
		count = 2
	}

	mods := modifierKeys(opts.Modifiers)
	for _, k := range mods {
		if err := t.page.Keyboard.Press(k); err != nil {
			return fmt.Errorf("host: modifier press: %w", err)
		}
	}
	defer func() {
		for _, k := range mods {
			_ = t.page.Keyboard.Release(k)
		}
	}()

	return el.Click(button, count)
}

func (t *rodTarget) fill(el *rod.Element, value string) error {
	if err := el.Focus(); err != nil {
		return err
	}
	// Clear existing content before typing; Input appends otherwise.
	if err := el.SelectAllText(); err == nil {
		_ = t.page.Keyboard.Press(input.Backspace)
	}
	if value == "" {
		_, err := el.Eval(`() => {
			this.value = "";
			this.dispatchEvent(new Event("input", {bubbles: true}));
			this.dispatchEvent(new Event("change", {bubbles: true}));
		}`)
		return evalErr(err, "clear")
	}
	return el.Input(value)
}

func (t *rodTarget) press(el *rod.Element, key string) error {
	if err := el.Focus(); err != nil {
		return err
	}
	k, err := keyFromName(key)
	if err != nil {
		return err
	}
	return t.page.Keyboard.Press(k)
}

// selectOption accepts a single value, a list of values, or an
// {index, label, value} object.
func (t *rodTarget) selectOption(el *rod.Element, value any) error {
	run := func(js string, arg any) error {
		_, err := el.Eval(js, arg)
		return evalErr(err, "select")
	}
	const byValues = `(values) => {
		const set = new Set(values);
		for (const opt of this.options) {
			opt.selected = set.has(opt.value) || set.has(opt.label);
		}
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}`

	switch v := value.(type) {
	case string:
		return run(byValues, []string{v})
	case []any:
		vals := make([]string, 0, len(v))
		for _, item := range v {
			vals = append(vals, fmt.Sprint(item))
		}
		return run(byValues, vals)
	case []string:
		return run(byValues, v)
	case map[string]any:
		if idx, ok := v["index"]; ok {
			return run(`(i) => {
				this.selectedIndex = i;
				this.dispatchEvent(new Event("input", {bubbles: true}));
				this.dispatchEvent(new Event("change", {bubbles: true}));
			}`, idx)
		}
		if label, ok := v["label"]; ok {
			return run(byValues, []string{fmt.Sprint(label)})
		}
		if val, ok := v["value"]; ok {
			return run(byValues, []string{fmt.Sprint(val)})
		}
		return fmt.Errorf("host: select object needs index, label, or value")
	default:
		return fmt.Errorf("host: unsupported select value %T", value)
	}
}

// drag moves the mouse from the element center to a target. For sliders the
// value is an x offset; for drag-and-drop it is {x, y} page coordinates or
// a target dom_ref.
func (t *rodTarget) drag(el *rod.Element, value any, slider bool) error {
	box, err := boundingBox(context.Background(), el)
	if err != nil {
		return err
	}
	fromX, fromY := box.CenterX, box.CenterY
	toX, toY := fromX, fromY

	switch v := value.(type) {
	case float64:
		toX = fromX + v
	case int:
		toX = fromX + float64(v)
	case map[string]any:
		if x, ok := v["x"].(float64); ok {
			toX = x
		}
		if y, ok := v["y"].(float64); ok {
			toY = y
		}
		if ref, ok := v["dom_ref"].(string); ok && ref != "" {
			target, err := t.page.Element(fmt.Sprintf(`[data-gaia-dom-ref=%q]`, ref))
			if err != nil {
				return fmt.Errorf("host: drag target: %w", err)
			}
			tb, err := boundingBox(context.Background(), target)
			if err != nil {
				return err
			}
			toX, toY = tb.CenterX, tb.CenterY
		}
	default:
		if !slider {
			return fmt.Errorf("host: unsupported drag value %T", value)
		}
	}

	m := t.page.Mouse
	if err := m.MoveTo(proto.Point{X: fromX, Y: fromY}); err != nil {
		return err
	}
	if err := m.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if err := m.MoveLinear(proto.Point{X: toX, Y: toY}, 10); err != nil {
		_ = m.Up(proto.InputMouseButtonLeft, 1)
		return err
	}
	return m.Up(proto.InputMouseButtonLeft, 1)
}

func (t *rodTarget) Evidence(ctx context.Context, frameIndex int) (*action.Evidence, error) {
	fr, err := t.frame(frameIndex)
	if err != nil {
		return nil, err
	}
	res, err := fr.Context(ctx).Timeout(primitiveTimeout).Eval(evidenceJS)
	if err != nil {
		return nil, evalErr(err, "evidence")
	}
	var ev action.Evidence
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &ev); err != nil {
		return nil, fmt.Errorf("host: decode evidence: %w", err)
	}
	return &ev, nil
}

func (t *rodTarget) TargetState(ctx context.Context, h action.Handle) (*action.TargetState, error) {
	el := h.(*rodHandle).el
	res, err := el.Context(ctx).Timeout(primitiveTimeout).Eval(`() => {
		const cs = getComputedStyle(this);
		return {
			found: true,
			visible: cs.display !== "none" && cs.visibility !== "hidden",
			value: this.value !== undefined ? String(this.value) : "",
			focused: document.activeElement === this,
		};
	}`)
	if err != nil {
		// The element left the DOM: that is a state, not a failure.
		if strings.Contains(err.Error(), "Cannot find context") ||
			strings.Contains(err.Error(), "Node with given id does not belong") {
			return &action.TargetState{Found: false}, nil
		}
		return nil, evalErr(err, "target state")
	}
	var st action.TargetState
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &st); err != nil {
		return nil, fmt.Errorf("host: decode target state: %w", err)
	}
	return &st, nil
}

func (t *rodTarget) ForceScroll(ctx context.Context, pos action.ScrollPos) error {
	js := `() => window.scrollTo(0, 0)`
	switch pos {
	case action.ScrollMid:
		js = `() => window.scrollTo(0, document.body.scrollHeight / 2)`
	case action.ScrollBot:
		js = `() => window.scrollTo(0, document.body.scrollHeight)`
	}
	_, err := t.page.Context(ctx).Timeout(primitiveTimeout).Eval(js)
	return evalErr(err, "force scroll")
}

func (t *rodTarget) Screenshot(ctx context.Context) (string, error) {
	data, err := t.page.Context(ctx).Timeout(primitiveTimeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func boundingBox(ctx context.Context, el *rod.Element) (snapshot.BoundingBox, error) {
	res, err := el.Context(ctx).Timeout(primitiveTimeout).Eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height,
			center_x: r.x + r.width / 2, center_y: r.y + r.height / 2};
	}`)
	if err != nil {
		return snapshot.BoundingBox{}, evalErr(err, "bounding box")
	}
	var box snapshot.BoundingBox
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &box); err != nil {
		return snapshot.BoundingBox{}, err
	}
	return box, nil
}

// evalErr tags deadline failures inside evaluates so the session can treat
// the connection as poisoned.
func evalErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("host: %s: %w", op, action.ErrEvaluateTimeout)
	}
	return fmt.Errorf("host: %s: %w", op, err)
}

func modifierKeys(names []string) []input.Key {
	var keys []input.Key
	for _, n := range names {
		switch n {
		case "Alt":
			keys = append(keys, input.AltLeft)
		case "Control", "Ctrl":
			keys = append(keys, input.ControlLeft)
		case "Meta":
			keys = append(keys, input.MetaLeft)
		case "Shift":
			keys = append(keys, input.ShiftLeft)
		}
	}
	return keys
}

var namedKeys = map[string]input.Key{
	"Enter": input.Enter, "Tab": input.Tab, "Escape": input.Escape,
	"Backspace": input.Backspace, "Space": input.Space, "Delete": input.Delete,
	"ArrowUp": input.ArrowUp, "ArrowDown": input.ArrowDown,
	"ArrowLeft": input.ArrowLeft, "ArrowRight": input.ArrowRight,
	"Home": input.Home, "End": input.End,
	"PageUp": input.PageUp, "PageDown": input.PageDown,
}

func keyFromName(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len(name) == 1 {
		return input.Key(rune(name[0])), nil
	}
	return 0, fmt.Errorf("host: unknown key %q", name)
}
