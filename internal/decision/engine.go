// Package decision drives retrieval, scoring and classification to
// produce a MatchDecision per alert, singly or in batches.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/retrieval"
	"github.com/opensource-finance/heron/internal/rules"
	"github.com/opensource-finance/heron/internal/scoring"
)

var tracer = otel.Tracer("heron-decision")

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	retriever  *retrieval.Retriever
	scorer     *scoring.Scorer
	thresholds Thresholds
	workers    int
}

// New validates cfg and builds every component once. Configuration
// problems are returned here and never at match time.
func New(cfg domain.MatchingConfig, pool domain.TransactionPool) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.TimeWindowHours > domain.MaxWindowHours {
		slog.Warn("time window clamped",
			"requested_hours", cfg.TimeWindowHours,
			"max_hours", domain.MaxWindowHours,
		)
	}

	ruleSet, err := rules.NewRuleSet(cfg)
	if err != nil {
		return nil, err
	}

	retriever, err := retrieval.New(pool, cfg)
	if err != nil {
		return nil, err
	}

	thresholds, err := NewThresholds(cfg.AutoMatchThreshold, cfg.NeedsReviewThreshold, cfg.RejectThreshold)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 10
	}

	return &Engine{
		retriever:  retriever,
		scorer:     scoring.New(ruleSet, cfg.TieBreakMargin),
		thresholds: thresholds,
		workers:    workers,
	}, nil
}

// Thresholds returns the classification thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Match decides one alert without claiming anything. claims may be nil.
func (e *Engine) Match(ctx context.Context, alert *domain.Alert, claims domain.ClaimChecker) (*domain.MatchDecision, error) {
	return e.decide(ctx, alert, retrieval.Options{Claims: claims})
}

// RematchOptions controls explicit re-evaluation of an alert.
type RematchOptions struct {
	// IncludeClaimed offers transactions that are already claimed.
	IncludeClaimed bool

	// Exclude lists transaction ids to leave out, such as a rejected match.
	Exclude []string
}

// Rematch decides an alert again with the given overrides.
func (e *Engine) Rematch(ctx context.Context, alert *domain.Alert, claims domain.ClaimChecker, opts RematchOptions) (*domain.MatchDecision, error) {
	return e.decide(ctx, alert, retrieval.Options{
		Claims:         claims,
		Exclude:        opts.Exclude,
		IncludeClaimed: opts.IncludeClaimed,
	})
}

// Commit claims the decision's best candidate for its alert.
func (e *Engine) Commit(ctx context.Context, decision *domain.MatchDecision, store domain.ClaimStore) error {
	txnID := decision.TransactionID()
	if txnID == "" {
		return fmt.Errorf("%w: decision for alert %s has no candidate to commit", domain.ErrInvalidInput, decision.AlertID)
	}
	return store.Claim(ctx, txnID, decision.AlertID)
}

// MatchAndClaim decides an alert and, when it is auto-matched, claims the
// best candidate. A claim lost to a concurrent alert re-runs the decision
// with that transaction excluded; each round excludes one more candidate,
// so the loop ends.
func (e *Engine) MatchAndClaim(ctx context.Context, alert *domain.Alert, store domain.ClaimStore) (*domain.MatchDecision, error) {
	var contested []string
	for {
		decision, err := e.decide(ctx, alert, retrieval.Options{Claims: store, Exclude: contested})
		if err != nil {
			return nil, err
		}
		if decision.Status != domain.StatusAutoMatched {
			return decision, nil
		}

		err = e.Commit(ctx, decision, store)
		if err == nil {
			return decision, nil
		}
		if !errors.Is(err, domain.ErrAlreadyClaimed) {
			return nil, &domain.RetrievalError{AlertID: alert.ID, Err: err}
		}

		txnID := decision.TransactionID()
		slog.Debug("claim conflict, re-matching",
			"alert_id", alert.ID,
			"txn_id", txnID,
		)
		contested = append(contested, txnID)
	}
}

func (e *Engine) decide(ctx context.Context, alert *domain.Alert, opts retrieval.Options) (*domain.MatchDecision, error) {
	start := time.Now()

	if err := alert.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "heron.match",
		trace.WithAttributes(attribute.String("alert.id", alert.ID)),
	)
	defer span.End()

	candidates, err := e.retriever.Retrieve(ctx, alert, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}

	ranked, err := e.scorer.Score(ctx, alert, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}

	decision := e.classify(alert, ranked)

	span.SetAttributes(
		attribute.Int("candidate.count", len(ranked)),
		attribute.String("decision.status", string(decision.Status)),
		attribute.Float64("decision.confidence", decision.Confidence),
	)

	slog.Debug("alert matched",
		"alert_id", alert.ID,
		"status", decision.Status,
		"confidence", decision.Confidence,
		"candidate_count", len(ranked),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return decision, nil
}

func (e *Engine) classify(alert *domain.Alert, ranked []*domain.MatchCandidate) *domain.MatchDecision {
	decision := &domain.MatchDecision{AlertID: alert.ID}

	if len(ranked) == 0 {
		decision.Status = domain.StatusNoCandidates
		decision.Notes = []string{"no candidate transactions found"}
		return decision
	}

	best := ranked[0]
	decision.BestCandidate = best
	decision.Confidence = best.TotalScore
	if len(ranked) > 1 {
		decision.Alternatives = ranked[1:]
	}

	status, note := e.thresholds.Classify(best.TotalScore)
	decision.Status = status
	decision.Matched = status == domain.StatusAutoMatched
	decision.Notes = append(decision.Notes, note)

	if best.TieBreakBonus > 0 {
		tied := 0
		for _, c := range ranked {
			if c.TieBreakBonus > 0 {
				tied++
			}
		}
		decision.Notes = append(decision.Notes, fmt.Sprintf("tie-break applied across %d candidates", tied))
	}

	return decision
}
