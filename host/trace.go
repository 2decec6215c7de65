// CLAUDE:SUMMARY Chrome tracing: start/stop over the CDP Tracing domain, trace stream written under the data root.
package host

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// traceState tracks one in-flight trace. A session holds at most one.
type traceState struct {
	path     string
	page     *rod.Page
	complete *proto.TracingTracingComplete
	wait     func()
}

var defaultTraceCategories = []string{
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"blink.user_timing",
	"loading",
	"navigation",
}

// startTrace begins collection on the current page. Callers hold s.mu.
func (s *Session) startTrace(ctx context.Context, path string) error {
	if s.trace != nil {
		return fmt.Errorf("host: trace already running for %s", s.ID)
	}
	page, err := s.currentPage()
	if err != nil {
		return err
	}

	st := &traceState{path: path, page: page, complete: &proto.TracingTracingComplete{}}
	// Register the waiter before starting so the complete event cannot slip
	// past between end and wait.
	st.wait = page.WaitEvent(st.complete)

	err = proto.TracingStart{
		TraceConfig:  &proto.TracingTraceConfig{IncludedCategories: defaultTraceCategories},
		TransferMode: proto.TracingStartTransferModeReturnAsStream,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("host: tracing start: %w", err)
	}
	s.trace = st
	return nil
}

// stopTrace ends collection, drains the trace stream to the armed path, and
// returns the path plus the byte count. Callers hold s.mu.
func (s *Session) stopTrace(ctx context.Context) (string, int64, error) {
	st := s.trace
	if st == nil {
		return "", 0, fmt.Errorf("host: no trace running for %s", s.ID)
	}
	s.trace = nil

	if err := (proto.TracingEnd{}).Call(st.page); err != nil {
		return "", 0, fmt.Errorf("host: tracing end: %w", err)
	}

	done := make(chan struct{})
	go func() {
		st.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return "", 0, fmt.Errorf("host: trace completion timed out")
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}

	if st.complete.Stream == "" {
		return "", 0, fmt.Errorf("host: trace complete without stream")
	}
	n, err := drainStream(st.page, st.complete.Stream, st.path)
	if err != nil {
		return "", 0, err
	}
	return st.path, n, nil
}

// stopTraceQuiet discards a running trace during session teardown.
func (s *Session) stopTraceQuiet() {
	st := s.trace
	if st == nil {
		return
	}
	s.trace = nil
	_ = proto.TracingEnd{}.Call(st.page)
}

// drainStream copies a CDP IO stream to a local file.
func drainStream(page *rod.Page, handle proto.IOStreamHandle, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("host: create trace file: %w", err)
	}
	defer f.Close()

	var total int64
	for {
		res, err := proto.IORead{Handle: handle}.Call(page)
		if err != nil {
			return total, fmt.Errorf("host: read trace stream: %w", err)
		}
		chunk, err := decodeStreamChunk(res.Data, res.Base64Encoded)
		if err != nil {
			return total, fmt.Errorf("host: decode trace chunk: %w", err)
		}
		n, err := f.Write(chunk)
		if err != nil {
			return total, fmt.Errorf("host: write trace file: %w", err)
		}
		total += int64(n)
		if res.EOF {
			break
		}
	}
	_ = proto.IOClose{Handle: handle}.Call(page)
	return total, nil
}

// decodeStreamChunk interprets one IO.read result. The devtools protocol
// flags each chunk individually: text chunks arrive verbatim, binary ones
// base64-encoded.
func decodeStreamChunk(data string, b64 bool) ([]byte, error) {
	if !b64 {
		return []byte(data), nil
	}
	return base64.StdEncoding.DecodeString(data)
}
