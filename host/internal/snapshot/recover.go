package snapshot

import "math"

// RecoverThreshold is the minimum similarity score an element in the fresh
// snapshot must reach to stand in for a stale ref. Below it, recovery fails
// and the caller surfaces stale_snapshot.
const RecoverThreshold = 6

// Recover locates, in fresh, the element a stale ref pointed at. The stamped
// dom_ref survives most page mutations, so an exact dom_ref match wins
// outright. Otherwise candidates are scored by similarity and the best is
// accepted at or above RecoverThreshold.
func Recover(stale *ElementMeta, fresh *Snapshot) (*ElementMeta, bool) {
	if stale == nil || fresh == nil {
		return nil, false
	}

	for _, e := range fresh.Elements {
		if e.DomRef != "" && e.DomRef == stale.DomRef {
			return e, true
		}
	}

	var best *ElementMeta
	bestScore := -1
	for _, e := range fresh.Elements {
		s := SimilarityScore(stale, e)
		if s > bestScore {
			best, bestScore = e, s
		}
	}
	if best == nil || bestScore < RecoverThreshold {
		return nil, false
	}
	return best, true
}

// SimilarityScore rates how plausibly candidate is the same element as ref.
// Weights favor the selector chain and visible text, the two signals that
// survive re-renders; geometry only breaks ties.
func SimilarityScore(ref, candidate *ElementMeta) int {
	score := 0

	if ref.FullSelector != "" && ref.FullSelector == candidate.FullSelector {
		score += 5
	} else if ref.Selector != "" && ref.Selector == candidate.Selector {
		score += 3
	}

	if ref.Tag == candidate.Tag {
		score++
	}

	refText := normalizeSpace(ref.Text)
	candText := normalizeSpace(candidate.Text)
	switch {
	case refText != "" && refText == candText:
		score += 3
	case refText != "" && candText != "" &&
		(len(refText) >= 8 && len(candText) >= 8) &&
		(refText[:8] == candText[:8]):
		score++
	}

	if r := ref.Role(); r != "" && r == candidate.Role() {
		score++
	}
	if ref.FrameIndex == candidate.FrameIndex {
		score++
	}
	if ref.TabIndex == candidate.TabIndex {
		score++
	}

	switch d := centerDistance(ref.Box, candidate.Box); {
	case d <= 32:
		score += 2
	case d <= 120:
		score++
	}

	return score
}

func centerDistance(a, b BoundingBox) float64 {
	dx := a.CenterX - b.CenterX
	dy := a.CenterY - b.CenterY
	return math.Sqrt(dx*dx + dy*dy)
}
