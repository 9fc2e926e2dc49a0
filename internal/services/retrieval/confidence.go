package retrieval

import (
	"fmt"

	"github.com/yungbote/chatlore-backend/internal/types"
)

// EvaluateConfidence tiers a scored result set. best is the top hybrid
// score, gap is best minus the fifth (or last) score, hasFullText reports
// whether any candidate matched the sparse query exactly. An exact keyword
// hit floors the tier at Low regardless of score.
func EvaluateConfidence(best, gap float64, hasFullText bool) (types.Confidence, string) {
	if hasFullText {
		switch {
		case best >= 0.5:
			return types.ConfidenceHigh, fmt.Sprintf("score=%.3f with exact keyword hit", best)
		case best >= 0.35:
			return types.ConfidenceMedium, fmt.Sprintf("score=%.3f with exact keyword hit", best)
		default:
			return types.ConfidenceLow, fmt.Sprintf("weak score=%.3f rescued by keyword hit", best)
		}
	}
	switch {
	case best >= 0.5 && gap >= 0.05:
		return types.ConfidenceHigh, fmt.Sprintf("score=%.3f, gap=%.3f", best, gap)
	case best >= 0.4 || (best >= 0.35 && gap >= 0.03):
		return types.ConfidenceMedium, fmt.Sprintf("score=%.3f, gap=%.3f", best, gap)
	case best >= 0.25:
		return types.ConfidenceLow, fmt.Sprintf("score=%.3f", best)
	default:
		return types.ConfidenceNone, fmt.Sprintf("no usable match (best=%.3f)", best)
	}
}

// ScoreGap computes best minus the fifth-best score, or best minus the last
// when fewer than five results exist. A single result has zero gap.
func ScoreGap(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	idx := 4
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[0] - scores[idx]
}
