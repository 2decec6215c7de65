package action

import (
	"context"
	"errors"

	"github.com/hazyhaar/gaia/host/internal/snapshot"
)

// ErrEvaluateTimeout marks a timeout that fired inside a page evaluate.
// The session layer treats the browser connection as poisoned when an
// action fails with it in the chain, and resets Chrome under the same
// session id.
var ErrEvaluateTimeout = errors.New("action: evaluate timed out")

// Handle is one live candidate element resolved from a dom ref.
type Handle interface {
	// Center is the element's current bounding-box center in page
	// coordinates, used to disambiguate multiple dom-ref matches.
	Center() (x, y float64)
}

// Target abstracts the live page the executor drives. The host implements
// it over rod; tests implement it in memory. Every method may suspend on a
// browser round-trip and must honor ctx.
type Target interface {
	// CurrentTabIndex is the index of the session's current tab.
	CurrentTabIndex() int

	// FrameCount is the number of addressable frames in the current page.
	FrameCount(ctx context.Context) (int, error)

	// Locate queries [data-gaia-dom-ref="domRef"] in the given frame and
	// returns every match.
	Locate(ctx context.Context, frameIndex int, domRef string) ([]Handle, error)

	// Reveal scrolls the element into an actionable position.
	Reveal(ctx context.Context, h Handle) error

	// Perform dispatches the kind-specific primitive on the element.
	Perform(ctx context.Context, h Handle, req *Request) error

	// Evidence samples the page-level state of the given frame.
	Evidence(ctx context.Context, frameIndex int) (*Evidence, error)

	// TargetState samples the element-level state.
	TargetState(ctx context.Context, h Handle) (*TargetState, error)

	// ForceScroll jumps the page to a fixed position (scroll probes).
	ForceScroll(ctx context.Context, pos ScrollPos) error

	// Screenshot returns a base64 PNG of the viewport, when requested.
	Screenshot(ctx context.Context) (string, error)
}

// SnapshotSource resolves stored snapshots and captures fresh ones for
// stale-ref recovery. The session implements it; capturing through it
// increments the session epoch and stores the result like any other
// snapshot.
type SnapshotSource interface {
	Get(id string) *snapshot.Snapshot
	Capture(ctx context.Context) (*snapshot.Snapshot, error)
}
