package decision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/heron/internal/claims"
	"github.com/opensource-finance/heron/internal/domain"
)

// BatchMode selects how a batch treats claims.
type BatchMode string

const (
	// ModeReadOnly scores alerts in parallel and claims nothing.
	ModeReadOnly BatchMode = "read_only"

	// ModeSequential processes alerts in input order and claims each
	// auto-matched transaction before moving to the next alert.
	ModeSequential BatchMode = "sequential"

	// ModeOptimistic scores alerts in parallel and commits each
	// auto-matched proposal atomically, re-matching on conflict.
	ModeOptimistic BatchMode = "optimistic"
)

// ParseBatchMode converts a string to a BatchMode. Empty means sequential.
func ParseBatchMode(s string) (BatchMode, error) {
	switch BatchMode(s) {
	case "":
		return ModeSequential, nil
	case ModeReadOnly, ModeSequential, ModeOptimistic:
		return BatchMode(s), nil
	default:
		return "", &domain.ConfigurationError{
			Field:  "mode",
			Reason: fmt.Sprintf("must be %s, %s or %s, got %q", ModeReadOnly, ModeSequential, ModeOptimistic, s),
		}
	}
}

// BatchOptions configures ProcessBatch.
type BatchOptions struct {
	Mode BatchMode

	// Workers bounds parallel modes; zero uses the engine default.
	Workers int

	// Claims is the run's claim set. Nil gets a fresh in-memory store in
	// the claiming modes and no claim checks in read-only mode.
	Claims domain.ClaimStore
}

// ProcessBatch decides every alert and returns the decisions in input
// order with summary statistics. Per-alert failures become decisions with
// status error. If ctx is cancelled, alerts not yet started are skipped and
// the partial result is returned together with the context error.
func (e *Engine) ProcessBatch(ctx context.Context, alerts []*domain.Alert, opts BatchOptions) (*domain.BatchResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeSequential
	}
	if _, err := ParseBatchMode(string(mode)); err != nil {
		return nil, err
	}

	store := opts.Claims
	if store == nil && mode != ModeReadOnly {
		store = claims.NewMemoryStore()
	}

	result := &domain.BatchResult{
		BatchID:   uuid.New().String(),
		Mode:      string(mode),
		StartedAt: time.Now().UTC(),
	}

	var decisions []*domain.MatchDecision
	var err error
	switch mode {
	case ModeSequential:
		decisions, err = e.runSequential(ctx, alerts, store)
	default:
		decisions, err = e.runParallel(ctx, alerts, mode, store, opts.Workers)
	}

	for _, d := range decisions {
		if d == nil {
			continue
		}
		result.Decisions = append(result.Decisions, d)
		result.Stats.Add(d)
	}
	result.Stats.Finalize()
	result.CompletedAt = time.Now().UTC()

	slog.Info("batch processed",
		"batch_id", result.BatchID,
		"mode", result.Mode,
		"total", result.Stats.Total,
		"auto_matched", result.Stats.AutoMatched,
		"needs_review", result.Stats.NeedsReview,
		"rejected", result.Stats.Rejected,
		"no_candidates", result.Stats.NoCandidates,
		"errors", result.Stats.Errors,
		"duration_ms", result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	)

	return result, err
}

func (e *Engine) runSequential(ctx context.Context, alerts []*domain.Alert, store domain.ClaimStore) ([]*domain.MatchDecision, error) {
	decisions := make([]*domain.MatchDecision, 0, len(alerts))
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return decisions, err
		}
		decisions = append(decisions, e.decideOne(ctx, alert, ModeSequential, store))
	}
	return decisions, nil
}

func (e *Engine) runParallel(ctx context.Context, alerts []*domain.Alert, mode BatchMode, store domain.ClaimStore, workers int) ([]*domain.MatchDecision, error) {
	if workers <= 0 {
		workers = e.workers
	}

	decisions := make([]*domain.MatchDecision, len(alerts))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, workers)

	for i, alert := range alerts {
		wg.Add(1)
		go func(idx int, a *domain.Alert) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}
			decisions[idx] = e.decideOne(ctx, a, mode, store)
		}(i, alert)
	}

	wg.Wait()

	return decisions, ctx.Err()
}

// decideOne never fails; errors become status error decisions.
func (e *Engine) decideOne(ctx context.Context, alert *domain.Alert, mode BatchMode, store domain.ClaimStore) *domain.MatchDecision {
	var (
		decision *domain.MatchDecision
		err      error
	)

	switch mode {
	case ModeReadOnly:
		decision, err = e.Match(ctx, alert, store)
	default:
		// A claim lost to an earlier alert re-matches without that
		// transaction; only store failures become errors.
		decision, err = e.MatchAndClaim(ctx, alert, store)
	}

	if err != nil {
		d := domain.NewErrorDecision(alert, err)
		slog.Warn("alert failed",
			"alert_id", d.AlertID,
			"error", err,
		)
		return d
	}
	return decision
}
