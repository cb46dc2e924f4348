package scoring

import (
	"math"
	"sort"

	"github.com/opensource-finance/heron/internal/domain"
)

// Secondary score blend and the bonus scale applied to it.
const (
	recencyWeight   = 0.5
	referenceWeight = 0.3
	bankWeight      = 0.2
	bonusFactor     = 0.01
)

// TieBreak runs on an already ranked list. When the top two candidates are
// closer than margin, every candidate within margin of the leader gets a
// secondary score and a small bonus, and that group is re-ordered by
// total plus bonus. TotalScore is left untouched and candidates outside
// the margin keep their positions. It reports whether a tie was broken.
func TieBreak(alert *domain.Alert, candidates []*domain.MatchCandidate, margin float64) bool {
	if len(candidates) < 2 {
		return false
	}

	leader := candidates[0].TotalScore
	if leader-candidates[1].TotalScore >= margin {
		return false
	}

	tied := 0
	for tied < len(candidates) && leader-candidates[tied].TotalScore < margin {
		tied++
	}

	group := candidates[:tied]
	for _, c := range group {
		c.TieBreakScore = SecondaryScore(alert, c)
		c.TieBreakBonus = c.TieBreakScore * bonusFactor
	}

	sort.SliceStable(group, func(i, j int) bool {
		return before(group[i], group[j], group[i].RankScore(), group[j].RankScore())
	})
	assignRanks(candidates)
	return true
}

// SecondaryScore blends recency, the best reference rule score and the
// bank rule score.
func SecondaryScore(alert *domain.Alert, c *domain.MatchCandidate) float64 {
	hours := math.Abs(alert.Timestamp.Sub(c.Transaction.Timestamp).Hours())
	recency := 1 / (1 + hours)

	reference := math.Max(
		c.RuleScore(domain.RuleExactReference),
		c.RuleScore(domain.RuleFuzzyReference),
	)

	return recencyWeight*recency +
		referenceWeight*reference +
		bankWeight*c.RuleScore(domain.RuleBankMatch)
}
