// Package vlm turns page screenshots and element listings into structured
// next-action decisions through a vision-language model.
//
// The model boundary is the Analyzer interface: one call, one text reply.
// Everything else — prompt construction, strict JSON parsing, the WAIT
// fallback on malformed replies — is deterministic and testable offline.
package vlm

import (
	"context"
	"fmt"
	"log/slog"
)

// Analyzer is the raw model boundary: a prompt plus an optional PNG
// screenshot in, free text out.
type Analyzer interface {
	AnalyzeWithVision(ctx context.Context, prompt string, screenshotPNG []byte) (string, error)
}

// Decider produces one Decision per step.
type Decider struct {
	Analyzer Analyzer
	Logger   *slog.Logger
}

// Decide issues one model request and parses the reply. A malformed reply
// degrades to a WAIT decision rather than an error: the goal loop treats
// parse failures as a reason to pause, not to crash.
func (d *Decider) Decide(ctx context.Context, prompt string, screenshotPNG []byte) (*Decision, error) {
	raw, err := d.Analyzer.AnalyzeWithVision(ctx, prompt, screenshotPNG)
	if err != nil {
		return nil, fmt.Errorf("vlm: analyze: %w", err)
	}
	dec := ParseDecision(raw)
	if d.Logger != nil {
		d.Logger.Debug("vlm: decision",
			"action", dec.Action, "element", dec.ElementID,
			"confidence", dec.Confidence, "goal_achieved", dec.IsGoalAchieved)
	}
	return dec, nil
}
