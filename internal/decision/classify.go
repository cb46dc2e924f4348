package decision

import (
	"fmt"

	"github.com/opensource-finance/heron/internal/domain"
)

// Thresholds maps a confidence score to a status.
type Thresholds struct {
	AutoMatch   float64
	NeedsReview float64
	Reject      float64
}

// NewThresholds validates reject <= needs_review <= auto_match.
func NewThresholds(autoMatch, needsReview, reject float64) (Thresholds, error) {
	t := Thresholds{AutoMatch: autoMatch, NeedsReview: needsReview, Reject: reject}
	if reject < 0 || autoMatch > 1 || reject > needsReview || needsReview > autoMatch {
		return t, &domain.ConfigurationError{
			Field:  "thresholds",
			Reason: fmt.Sprintf("must satisfy 0 <= reject (%.2f) <= needs_review (%.2f) <= auto_match (%.2f) <= 1", reject, needsReview, autoMatch),
		}
	}
	return t, nil
}

// Classify returns the status for score and a note explaining it.
// Scores below the review threshold are rejected; the note tells apart
// scores under the reject threshold from those in the gap above it.
func (t Thresholds) Classify(score float64) (domain.MatchStatus, string) {
	switch {
	case score >= t.AutoMatch:
		return domain.StatusAutoMatched, fmt.Sprintf("confidence %.3f at or above auto-match threshold %.2f", score, t.AutoMatch)
	case score >= t.NeedsReview:
		return domain.StatusNeedsReview, fmt.Sprintf("confidence %.3f at or above review threshold %.2f", score, t.NeedsReview)
	case score < t.Reject:
		return domain.StatusRejected, fmt.Sprintf("confidence %.3f below reject threshold %.2f", score, t.Reject)
	default:
		return domain.StatusRejected, fmt.Sprintf("confidence %.3f between reject threshold %.2f and review threshold %.2f", score, t.Reject, t.NeedsReview)
	}
}
