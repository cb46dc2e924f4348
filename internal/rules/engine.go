// Package rules provides the fixed reconciliation rule set and its
// parallel evaluator.
package rules

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
)

// Func scores one alert/transaction pair. It returns a score in [0,1] and
// optional details. Missing data yields 0, never an error.
type Func func(alert *domain.Alert, txn *domain.Transaction, p Params) (float64, map[string]string)

// Rule is a fixed rule descriptor.
type Rule struct {
	Name   string
	Weight float64
	Eval   Func
}

// Params carries the configuration values rules depend on.
type Params struct {
	AmountTolerance float64
	TimeWindow      time.Duration
	Bucketing       domain.BucketGranularity
}

// RuleSet is an immutable, validated list of rules.
type RuleSet struct {
	rules      []Rule
	params     Params
	maxWorkers int
}

var builtins = map[string]Func{
	domain.RuleExactAmount:        exactAmount,
	domain.RuleExactReference:     exactReference,
	domain.RuleFuzzyReference:     fuzzyReference,
	domain.RuleTimestampProximity: timestampProximity,
	domain.RuleAccountMatch:       accountMatch,
	domain.RuleCompositeKey:       compositeKeyPartial,
	domain.RuleBankMatch:          bankMatch,
}

// NewRuleSet builds the rule set from configuration. Weights are checked
// here, once.
func NewRuleSet(cfg domain.MatchingConfig) (*RuleSet, error) {
	if err := domain.ValidateWeights(cfg.RuleWeights); err != nil {
		return nil, err
	}

	maxWorkers := cfg.Workers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	rules := make([]Rule, 0, len(domain.RuleNames))
	for _, name := range domain.RuleNames {
		fn, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("rule %s has no implementation", name)
		}
		rules = append(rules, Rule{Name: name, Weight: cfg.RuleWeights[name], Eval: fn})
	}

	return &RuleSet{
		rules: rules,
		params: Params{
			AmountTolerance: cfg.AmountTolerancePercent,
			TimeWindow:      time.Duration(domain.ClampWindow(cfg.TimeWindowHours) * float64(time.Hour)),
			Bucketing:       cfg.DateBucket,
		},
		maxWorkers: maxWorkers,
	}, nil
}

// Rules returns a copy of the rule descriptors.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Params returns the parameters rules are evaluated with.
func (s *RuleSet) Params() Params {
	return s.params
}

// Evaluate runs every rule against one candidate, in descriptor order.
func (s *RuleSet) Evaluate(alert *domain.Alert, txn *domain.Transaction) []domain.RuleScore {
	scores := make([]domain.RuleScore, len(s.rules))
	for i, r := range s.rules {
		score, details := r.Eval(alert, txn, s.params)
		score = clamp(score)
		scores[i] = domain.RuleScore{
			Rule:         r.Name,
			Score:        score,
			Weight:       r.Weight,
			Contribution: score * r.Weight,
			Details:      details,
		}
	}
	return scores
}

// EvaluateAll scores every candidate in parallel. Result i belongs to
// txns[i].
func (s *RuleSet) EvaluateAll(ctx context.Context, alert *domain.Alert, txns []*domain.Transaction) ([][]domain.RuleScore, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	results := make([][]domain.RuleScore, len(txns))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, s.maxWorkers)

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int, t *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = s.Evaluate(alert, t)
		}(i, txn)
	}

	wg.Wait()

	return results, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
