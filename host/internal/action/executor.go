// CLAUDE:SUMMARY The effect-verifying executor: resolve ref, scope checks, locate, before/after evidence, probe schedule, scroll probes, classification.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hazyhaar/gaia/host/internal/snapshot"
	"github.com/hazyhaar/gaia/reason"
)

// Executor runs single element actions with effect verification.
type Executor struct {
	Snapshots SnapshotSource
	Target    Target

	// Budget bounds one action wall-clock, probes included. Default 45s.
	Budget time.Duration
	// SubmitBudget applies to submit-like clicks. Default 20s.
	SubmitBudget time.Duration

	// Sleep is swappable so tests run the probe schedule without waiting.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (x *Executor) defaults() {
	if x.Budget <= 0 {
		x.Budget = 45 * time.Second
	}
	if x.SubmitBudget <= 0 {
		x.SubmitBudget = 20 * time.Second
	}
	if x.Sleep == nil {
		x.Sleep = ctxSleep
	}
	if x.Logger == nil {
		x.Logger = slog.Default()
	}
}

// locator is one strategy for resolving the live element. All candidates
// derive from the stamped dom ref today; the list form is the extension
// point for alternative strategies.
type locator struct {
	strategy string
	domRef   string
}

func locatorCandidates(meta *snapshot.ElementMeta) []locator {
	return []locator{{strategy: "domref", domRef: meta.DomRef}}
}

// Execute runs one element action end to end and always returns a Result
// carrying exactly one reason code.
func (x *Executor) Execute(ctx context.Context, req *Request) *Result {
	x.defaults()

	res := &Result{
		ReasonCode:     reason.Unknown,
		SnapshotIDUsed: req.SnapshotID,
		RefIDUsed:      req.RefID,
	}

	// 1. Snapshot resolution.
	snap := x.Snapshots.Get(req.SnapshotID)
	if snap == nil {
		return fail(res, reason.SnapshotNotFound, "snapshot %s not found or evicted", req.SnapshotID)
	}
	meta := snap.Element(req.RefID)
	if meta == nil {
		return fail(res, reason.NotFound, "ref %s not present in snapshot %s", req.RefID, req.SnapshotID)
	}

	parsed, err := snapshot.ParseID(req.SnapshotID)
	if err != nil {
		return fail(res, reason.InvalidInput, "malformed snapshot id: %v", err)
	}

	recoverPrefix := ""
	stale := parsed.Epoch != snap.Epoch ||
		!strings.HasPrefix(snap.DomHash, parsed.HashPrefix) ||
		snap.TabIndex != x.Target.CurrentTabIndex()
	if stale {
		fresh, err := x.Snapshots.Capture(ctx)
		if err != nil {
			return fail(res, reason.StaleSnapshot, "stale snapshot and recapture failed: %v", err)
		}
		rec, ok := snapshot.Recover(meta, fresh)
		if !ok {
			return fail(res, reason.StaleSnapshot, "stale snapshot %s: ref %s not recoverable", req.SnapshotID, req.RefID)
		}
		snap, meta = fresh, rec
		res.StaleRecovered = true
		res.SnapshotIDUsed = fresh.ID
		res.RefIDUsed = rec.RefID
		recoverPrefix = "recover:"
		x.Logger.Debug("action: stale ref recovered",
			"old", req.RefID, "new", rec.RefID, "snapshot", fresh.ID)
	}

	// 2. Scope checks.
	if meta.TabIndex != x.Target.CurrentTabIndex() {
		return fail(res, reason.TabScopeMismatch,
			"ref is scoped to tab %d, current tab is %d", meta.TabIndex, x.Target.CurrentTabIndex())
	}
	frameCount, err := x.Target.FrameCount(ctx)
	if err != nil {
		return fail(res, reason.NotActionable, "frame enumeration failed: %v", err)
	}
	if meta.FrameIndex < 0 || meta.FrameIndex >= frameCount {
		return fail(res, reason.FrameScopeMismatch,
			"ref is scoped to frame %d, page has %d frames", meta.FrameIndex, frameCount)
	}

	// 3..9 under the wall-clock budget.
	submit := SubmitLike(req.Kind, meta)
	budget := x.Budget
	if submit {
		budget = x.SubmitBudget
	}
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var path []string
	lastCode := reason.Unknown
	lastNote := ""
	for _, cand := range locatorCandidates(meta) {
		res.AttemptCount++
		path = append(path, recoverPrefix+cand.strategy)

		code, note := x.attempt(actx, req, meta, cand, submit, res)
		res.AttemptLogs = append(res.AttemptLogs,
			formatAttempt(recoverPrefix, cand.strategy, code, note, res.StateChange.ProbeWaitMS))

		if code == reason.OK {
			res.Success = true
			res.ReasonCode = reason.OK
			res.Reason = note
			res.RetryPath = strings.Join(path, ">")
			return res
		}
		lastCode, lastNote = code, note
		if actx.Err() != nil {
			lastCode = reason.ActionTimeout
			lastNote = fmt.Sprintf("budget %s exhausted", budget)
			break
		}
	}

	res.RetryPath = strings.Join(path, ">")
	return fail(res, lastCode, "%s", lastNote)
}

// attempt runs one locator candidate through invoke and verification.
func (x *Executor) attempt(ctx context.Context, req *Request, meta *snapshot.ElementMeta, cand locator, submit bool, res *Result) (reason.Code, string) {
	handles, err := x.Target.Locate(ctx, meta.FrameIndex, cand.domRef)
	if err != nil {
		return x.classifyErr(res, err, "locate")
	}
	h, code, note := pick(handles, meta)
	if code != reason.OK {
		return code, note
	}

	// 4. Before-state.
	before, err := x.Target.Evidence(ctx, meta.FrameIndex)
	if err != nil {
		return x.classifyErr(res, err, "before evidence")
	}
	bt, err := x.Target.TargetState(ctx, h)
	if err != nil {
		return x.classifyErr(res, err, "before target state")
	}

	// 5. Invoke.
	if err := x.Target.Reveal(ctx, h); err != nil {
		x.Logger.Debug("action: reveal failed", "ref", meta.RefID, "error", err)
	}
	if err := x.Target.Perform(ctx, h, req); err != nil {
		if c, n := x.timeoutErr(res, err); c != "" {
			return c, n
		}
		return reason.NotActionable, fmt.Sprintf("%s failed: %v", req.Kind, err)
	}

	// 6. After-state probes.
	fillValue := FillValue(req.Value)
	verifyGate := req.Verify && !submit
	effective := false
	var sc StateChange
	var waits []int

	for _, wait := range Schedule(submit) {
		if err := x.Sleep(ctx, wait); err != nil {
			res.StateChange = sc
			return reason.ActionTimeout, "budget exhausted during probe wait"
		}
		waits = append(waits, int(wait/time.Millisecond))

		after, err := x.Target.Evidence(ctx, meta.FrameIndex)
		if err != nil {
			res.StateChange = sc
			return x.classifyErr(res, err, "probe evidence")
		}
		at, err := x.Target.TargetState(ctx, h)
		if err != nil {
			res.StateChange = sc
			return x.classifyErr(res, err, "probe target state")
		}

		sc = Compare(req.Kind, fillValue, before, after, bt, at)
		sc.ProbeWaitMS = waits
		res.CurrentURL = after.URL
		if Effective(req.Kind, sc) {
			effective = true
			break
		}
	}
	res.StateChange = sc

	// 7. Scroll probes, last resort for click/press.
	if verifyGate && !effective && (req.Kind == KindClick || req.Kind == KindPress) {
		for _, pos := range scrollProbes {
			if err := x.Target.ForceScroll(ctx, pos); err != nil {
				break
			}
			if err := x.Sleep(ctx, 300*time.Millisecond); err != nil {
				return reason.ActionTimeout, "budget exhausted during scroll probe"
			}
			after, err := x.Target.Evidence(ctx, meta.FrameIndex)
			if err != nil {
				return x.classifyErr(res, err, "scroll probe evidence")
			}
			at, _ := x.Target.TargetState(ctx, h)
			probe := Compare(req.Kind, fillValue, before, after, bt, at)
			probe.ProbeWaitMS = waits
			if Effective(req.Kind, probe) {
				probe.ProbeScroll = string(pos)
				res.StateChange = probe
				res.CurrentURL = after.URL
				effective = true
				break
			}
		}
	}

	if req.Options.Screenshot {
		if shot, err := x.Target.Screenshot(ctx); err == nil {
			res.Screenshot = shot
		}
	}

	// 9. Classification.
	res.Effective = effective
	if effective {
		return reason.OK, "action effective"
	}
	if !verifyGate {
		return reason.OK, "transported; verification waived"
	}
	return reason.NoStateChange, fmt.Sprintf("%s transported but no state change observed", req.Kind)
}

// pick chooses among multiple dom-ref matches by recorded center proximity.
// Two candidates within ambiguityMargin of each other cannot be told apart.
const ambiguityMargin = 4.0

func pick(handles []Handle, meta *snapshot.ElementMeta) (Handle, reason.Code, string) {
	switch len(handles) {
	case 0:
		return nil, reason.NotFound, fmt.Sprintf("dom ref %s matched nothing", meta.DomRef)
	case 1:
		return handles[0], reason.OK, ""
	}

	best, second := math.MaxFloat64, math.MaxFloat64
	var bestH Handle
	for _, h := range handles {
		hx, hy := h.Center()
		d := math.Hypot(hx-meta.Box.CenterX, hy-meta.Box.CenterY)
		if d < best {
			best, second = d, best
			bestH = h
		} else if d < second {
			second = d
		}
	}
	if second-best < ambiguityMargin {
		return nil, reason.AmbiguousRefTarget,
			fmt.Sprintf("dom ref %s matched %d elements with indistinguishable geometry", meta.DomRef, len(handles))
	}
	return bestH, reason.OK, ""
}

// classifyErr maps a Target error to its reason code, flagging poisoned
// evaluate connections.
func (x *Executor) classifyErr(res *Result, err error, op string) (reason.Code, string) {
	if c, n := x.timeoutErr(res, err); c != "" {
		return c, n
	}
	return reason.NotActionable, fmt.Sprintf("%s: %v", op, err)
}

func (x *Executor) timeoutErr(res *Result, err error) (reason.Code, string) {
	if errors.Is(err, ErrEvaluateTimeout) {
		res.EvaluateTimedOut = true
		return reason.ActionTimeout, "evaluate timed out; browser connection poisoned"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return reason.ActionTimeout, "action deadline exceeded"
	}
	return "", ""
}

func fail(res *Result, code reason.Code, format string, args ...any) *Result {
	res.Success = false
	res.Effective = false
	res.ReasonCode = reason.Normalize(code)
	res.Reason = fmt.Sprintf(format, args...)
	return res
}

func formatAttempt(prefix, strategy string, code reason.Code, note string, waits []int) string {
	s := fmt.Sprintf("%s%s %s", prefix, strategy, code)
	if len(waits) > 0 {
		s += fmt.Sprintf(" probes=%v", waits)
	}
	if note != "" {
		s += " " + note
	}
	return s
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
