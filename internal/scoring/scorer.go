// Package scoring turns rule scores into ranked match candidates.
package scoring

import (
	"context"
	"sort"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/rules"
)

// Scorer evaluates candidates with a rule set, ranks them and applies the
// tie-break pass.
type Scorer struct {
	rules  *rules.RuleSet
	margin float64
}

// New creates a scorer.
func New(rs *rules.RuleSet, tieBreakMargin float64) *Scorer {
	return &Scorer{rules: rs, margin: tieBreakMargin}
}

// Score returns one ranked candidate per transaction, best first.
func (s *Scorer) Score(ctx context.Context, alert *domain.Alert, txns []*domain.Transaction) ([]*domain.MatchCandidate, error) {
	results, err := s.rules.EvaluateAll(ctx, alert, txns)
	if err != nil {
		return nil, err
	}

	candidates := make([]*domain.MatchCandidate, len(txns))
	for i, txn := range txns {
		candidates[i] = &domain.MatchCandidate{
			Transaction: txn,
			RuleScores:  results[i],
			TotalScore:  Total(results[i]),
		}
	}

	Rank(candidates)
	TieBreak(alert, candidates, s.margin)
	return candidates, nil
}

// Total is the weighted sum of rule scores, clamped to [0,1].
func Total(scores []domain.RuleScore) float64 {
	total := 0.0
	for _, rs := range scores {
		total += rs.Score * rs.Weight
	}
	if total > 1 {
		return 1
	}
	if total < 0 {
		return 0
	}
	return total
}

// Rank sorts candidates by total score descending and assigns ranks
// starting at 1. Equal totals fall back to timestamp, then id.
func Rank(candidates []*domain.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return before(candidates[i], candidates[j], candidates[i].TotalScore, candidates[j].TotalScore)
	})
	assignRanks(candidates)
}

func before(a, b *domain.MatchCandidate, scoreA, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	ta, tb := a.Transaction.Timestamp, b.Transaction.Timestamp
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.Transaction.ID < b.Transaction.ID
}

func assignRanks(candidates []*domain.MatchCandidate) {
	for i, c := range candidates {
		c.Rank = i + 1
	}
}
