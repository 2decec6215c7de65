package action

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/gaia/host/internal/snapshot"
	"github.com/hazyhaar/gaia/reason"
)

type fakeHandle struct{ x, y float64 }

func (h fakeHandle) Center() (float64, float64) { return h.x, h.y }

// fakeTarget scripts the live-page side of the executor. Evidence and
// target-state samples are consumed as queues; the last entry repeats.
type fakeTarget struct {
	tab        int
	frames     int
	handles    []Handle
	locateErr  error
	performErr error
	evidence   []*Evidence
	evIdx      int
	states     []*TargetState
	stIdx      int

	performed int
	scrolled  []ScrollPos
}

func (f *fakeTarget) CurrentTabIndex() int { return f.tab }

func (f *fakeTarget) FrameCount(context.Context) (int, error) {
	if f.frames == 0 {
		return 1, nil
	}
	return f.frames, nil
}

func (f *fakeTarget) Locate(_ context.Context, _ int, _ string) ([]Handle, error) {
	return f.handles, f.locateErr
}

func (f *fakeTarget) Reveal(context.Context, Handle) error { return nil }

func (f *fakeTarget) Perform(_ context.Context, _ Handle, _ *Request) error {
	f.performed++
	return f.performErr
}

func (f *fakeTarget) Evidence(context.Context, int) (*Evidence, error) {
	if len(f.evidence) == 0 {
		return baseEvidence(), nil
	}
	ev := f.evidence[f.evIdx]
	if f.evIdx < len(f.evidence)-1 {
		f.evIdx++
	}
	if ev == nil {
		return nil, fmt.Errorf("sample page: %w", ErrEvaluateTimeout)
	}
	return ev, nil
}

func (f *fakeTarget) TargetState(context.Context, Handle) (*TargetState, error) {
	if len(f.states) == 0 {
		return &TargetState{Found: true, Visible: true}, nil
	}
	st := f.states[f.stIdx]
	if f.stIdx < len(f.states)-1 {
		f.stIdx++
	}
	return st, nil
}

func (f *fakeTarget) ForceScroll(_ context.Context, pos ScrollPos) error {
	f.scrolled = append(f.scrolled, pos)
	return nil
}

func (f *fakeTarget) Screenshot(context.Context) (string, error) { return "", nil }

type fakeSnapshots struct {
	stored  map[string]*snapshot.Snapshot
	capture *snapshot.Snapshot
}

func (f *fakeSnapshots) Get(id string) *snapshot.Snapshot { return f.stored[id] }

func (f *fakeSnapshots) Capture(context.Context) (*snapshot.Snapshot, error) {
	if f.capture == nil {
		return nil, fmt.Errorf("no capture scripted")
	}
	return f.capture, nil
}

func testSnap(session string, epoch uint64, tab int, metas ...*snapshot.ElementMeta) *snapshot.Snapshot {
	h := snapshot.Hash(metas)
	byRef := make(map[string]*snapshot.ElementMeta, len(metas))
	for i, m := range metas {
		m.RefID = snapshot.FormatRef(tab, m.FrameIndex, i)
		m.TabIndex = tab
		byRef[m.RefID] = m
	}
	return &snapshot.Snapshot{
		ID:       snapshot.FormatID(session, epoch, h),
		Epoch:    epoch,
		DomHash:  h,
		TabIndex: tab,
		Elements: metas,
		ByRef:    byRef,
	}
}

func buttonMeta(domRef, text string) *snapshot.ElementMeta {
	return &snapshot.ElementMeta{
		DomRef:     domRef,
		Tag:        "button",
		Text:       text,
		Selector:   "#b",
		Attributes: map[string]string{},
		Box:        snapshot.BoundingBox{CenterX: 50, CenterY: 50},
	}
}

func newExecutor(tgt *fakeTarget, snaps *fakeSnapshots) *Executor {
	return &Executor{
		Snapshots: snaps,
		Target:    tgt,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}
}

func TestExecuteEffectiveClick(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Details")
	snap := testSnap("s1", 1, 0, meta)

	after := baseEvidence()
	after.URL = "https://example.test/details"
	tgt := &fakeTarget{
		handles:  []Handle{fakeHandle{50, 50}},
		evidence: []*Evidence{baseEvidence(), after},
	}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})

	if !res.Success || !res.Effective || res.ReasonCode != reason.OK {
		t.Fatalf("result = %+v", res)
	}
	if !res.StateChange.URLChanged {
		t.Fatal("url_changed not reported")
	}
	if got := res.StateChange.ProbeWaitMS; len(got) != 1 || got[0] != 350 {
		t.Fatalf("probe_wait_ms = %v, want [350]", got)
	}
	if res.CurrentURL != after.URL {
		t.Fatalf("current_url = %q", res.CurrentURL)
	}
	if tgt.performed != 1 {
		t.Fatalf("performed = %d", tgt.performed)
	}
}

func TestExecuteNoStateChange(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Noop")
	snap := testSnap("s1", 1, 0, meta)

	tgt := &fakeTarget{handles: []Handle{fakeHandle{50, 50}}}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})

	if res.Success || res.Effective {
		t.Fatalf("result = %+v", res)
	}
	if res.ReasonCode != reason.NoStateChange {
		t.Fatalf("reason = %s, want no_state_change", res.ReasonCode)
	}
	if got := res.StateChange.ProbeWaitMS; len(got) != 3 || got[0] != 350 || got[1] != 700 || got[2] != 1500 {
		t.Fatalf("probe_wait_ms = %v, want the full schedule", got)
	}
	if len(tgt.scrolled) != 3 {
		t.Fatalf("scroll probes = %v, want top/mid/bottom", tgt.scrolled)
	}
	if len(res.AttemptLogs) == 0 || !strings.Contains(res.AttemptLogs[0], "350 700 1500") {
		t.Fatalf("attempt logs missing probe waits: %v", res.AttemptLogs)
	}
}

func TestExecuteSubmitLikeShortSchedule(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "")
	meta.Attributes["type"] = "submit"
	snap := testSnap("s1", 1, 0, meta)

	tgt := &fakeTarget{handles: []Handle{fakeHandle{50, 50}}}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})

	// Submit-like clicks waive the effectiveness gate.
	if !res.Success || res.ReasonCode != reason.OK {
		t.Fatalf("result = %+v", res)
	}
	if got := res.StateChange.ProbeWaitMS; len(got) != 1 || got[0] != 250 {
		t.Fatalf("probe_wait_ms = %v, want [250]", got)
	}
	if len(tgt.scrolled) != 0 {
		t.Fatal("submit-like click must not run scroll probes")
	}
}

func TestExecuteStaleRecovery(t *testing.T) {
	// Stored snapshot was taken on tab 1; the session is now on tab 0, so
	// the snapshot is stale. The fresh capture still carries the dom ref.
	staleMeta := buttonMeta("gaia-button-1-0", "Save")
	staleSnap := testSnap("s1", 1, 1, staleMeta)

	freshMeta := buttonMeta("gaia-button-1-0", "Save")
	freshSnap := testSnap("s1", 2, 0, freshMeta)

	after := baseEvidence()
	after.DomHash = "bbbb"
	tgt := &fakeTarget{
		handles:  []Handle{fakeHandle{50, 50}},
		evidence: []*Evidence{baseEvidence(), after},
	}
	x := newExecutor(tgt, &fakeSnapshots{
		stored:  map[string]*snapshot.Snapshot{staleSnap.ID: staleSnap},
		capture: freshSnap,
	})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: staleSnap.ID, RefID: staleMeta.RefID, Kind: KindClick, Verify: true,
	})

	if !res.Success || res.ReasonCode != reason.OK {
		t.Fatalf("result = %+v", res)
	}
	if !res.StaleRecovered {
		t.Fatal("stale_recovered not set")
	}
	if res.SnapshotIDUsed != freshSnap.ID || res.RefIDUsed != freshMeta.RefID {
		t.Fatalf("used %s/%s, want fresh ids", res.SnapshotIDUsed, res.RefIDUsed)
	}
	if len(res.AttemptLogs) == 0 || !strings.HasPrefix(res.AttemptLogs[0], "recover:") {
		t.Fatalf("attempt_logs[0] = %v, want recover: prefix", res.AttemptLogs)
	}
}

func TestExecuteStaleUnrecoverable(t *testing.T) {
	staleMeta := buttonMeta("gaia-button-1-0", "Save")
	staleSnap := testSnap("s1", 1, 1, staleMeta)

	// Fresh page has nothing resembling the stale element.
	stranger := &snapshot.ElementMeta{
		DomRef: "gaia-div-9-9", Tag: "div", Text: "other",
		Attributes: map[string]string{},
		Box:        snapshot.BoundingBox{CenterX: 900, CenterY: 900},
	}
	freshSnap := testSnap("s1", 2, 0, stranger)

	tgt := &fakeTarget{handles: []Handle{fakeHandle{50, 50}}}
	x := newExecutor(tgt, &fakeSnapshots{
		stored:  map[string]*snapshot.Snapshot{staleSnap.ID: staleSnap},
		capture: freshSnap,
	})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: staleSnap.ID, RefID: staleMeta.RefID, Kind: KindClick, Verify: true,
	})

	if res.ReasonCode != reason.StaleSnapshot {
		t.Fatalf("reason = %s, want stale_snapshot", res.ReasonCode)
	}
	if tgt.performed != 0 {
		t.Fatal("no interaction may happen after failed recovery")
	}
}

func TestExecuteSnapshotNotFound(t *testing.T) {
	tgt := &fakeTarget{}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: "s1:9:abcdef123456", RefID: "t0-f0-e0", Kind: KindClick, Verify: true,
	})
	if res.ReasonCode != reason.SnapshotNotFound {
		t.Fatalf("reason = %s", res.ReasonCode)
	}
}

func TestExecuteScopeMismatches(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Save")
	snap := testSnap("s1", 1, 0, meta)
	// Element claims a different tab than the snapshot's current one.
	meta.TabIndex = 2

	tgt := &fakeTarget{handles: []Handle{fakeHandle{50, 50}}}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})
	if res.ReasonCode != reason.TabScopeMismatch {
		t.Fatalf("reason = %s, want tab_scope_mismatch", res.ReasonCode)
	}
	if tgt.performed != 0 {
		t.Fatal("no interaction on scope mismatch")
	}

	// Frame beyond the live frame count.
	meta.TabIndex = 0
	meta.FrameIndex = 5
	res = x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})
	if res.ReasonCode != reason.FrameScopeMismatch {
		t.Fatalf("reason = %s, want frame_scope_mismatch", res.ReasonCode)
	}
}

func TestExecuteLocatorOutcomes(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Save")
	snap := testSnap("s1", 1, 0, meta)
	snaps := &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}}
	req := &Request{SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true}

	t.Run("zero matches", func(t *testing.T) {
		x := newExecutor(&fakeTarget{}, snaps)
		if res := x.Execute(context.Background(), req); res.ReasonCode != reason.NotFound {
			t.Fatalf("reason = %s", res.ReasonCode)
		}
	})

	t.Run("equidistant duplicates are ambiguous", func(t *testing.T) {
		tgt := &fakeTarget{handles: []Handle{fakeHandle{48, 50}, fakeHandle{52, 50}}}
		x := newExecutor(tgt, snaps)
		if res := x.Execute(context.Background(), req); res.ReasonCode != reason.AmbiguousRefTarget {
			t.Fatalf("reason = %s", res.ReasonCode)
		}
	})

	t.Run("nearest center wins", func(t *testing.T) {
		after := baseEvidence()
		after.URL = "https://example.test/next"
		tgt := &fakeTarget{
			handles:  []Handle{fakeHandle{51, 50}, fakeHandle{400, 600}},
			evidence: []*Evidence{baseEvidence(), after},
		}
		x := newExecutor(tgt, snaps)
		if res := x.Execute(context.Background(), req); res.ReasonCode != reason.OK {
			t.Fatalf("reason = %s (%s)", res.ReasonCode, res.Reason)
		}
	})
}

func TestExecuteEvaluateTimeoutPoisons(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Save")
	snap := testSnap("s1", 1, 0, meta)

	// nil evidence entry makes the fake return ErrEvaluateTimeout.
	tgt := &fakeTarget{
		handles:  []Handle{fakeHandle{50, 50}},
		evidence: []*Evidence{nil},
	}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: true,
	})
	if res.ReasonCode != reason.ActionTimeout {
		t.Fatalf("reason = %s, want action_timeout", res.ReasonCode)
	}
	if !res.EvaluateTimedOut {
		t.Fatal("EvaluateTimedOut not flagged")
	}
}

func TestExecuteVerifyOffSkipsGate(t *testing.T) {
	meta := buttonMeta("gaia-button-1-0", "Noop")
	snap := testSnap("s1", 1, 0, meta)

	tgt := &fakeTarget{handles: []Handle{fakeHandle{50, 50}}}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindClick, Verify: false,
	})
	if !res.Success || res.ReasonCode != reason.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Effective {
		t.Fatal("effective must stay false without observed change")
	}
}

func TestExecuteFillEffectiveByValue(t *testing.T) {
	meta := &snapshot.ElementMeta{
		DomRef: "gaia-input-1-0", Tag: "input",
		Attributes: map[string]string{"type": "email"},
		Box:        snapshot.BoundingBox{CenterX: 10, CenterY: 10},
	}
	snap := testSnap("s1", 1, 0, meta)

	tgt := &fakeTarget{
		handles: []Handle{fakeHandle{10, 10}},
		states: []*TargetState{
			{Found: true, Visible: true, Value: ""},
			{Found: true, Visible: true, Value: "a@b.test", Focused: true},
		},
	}
	x := newExecutor(tgt, &fakeSnapshots{stored: map[string]*snapshot.Snapshot{snap.ID: snap}})

	res := x.Execute(context.Background(), &Request{
		SnapshotID: snap.ID, RefID: meta.RefID, Kind: KindFill, Value: "a@b.test", Verify: true,
	})
	if !res.Success || !res.Effective {
		t.Fatalf("result = %+v", res)
	}
	if !res.StateChange.TargetValueMatches {
		t.Fatal("target_value_matches not set")
	}
}
