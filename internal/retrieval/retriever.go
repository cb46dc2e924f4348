// Package retrieval finds the bounded set of plausible candidate
// transactions for an alert.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// Retriever runs the near lookup, falls back to a range query, drops
// claimed and filtered transactions and truncates the result.
type Retriever struct {
	pool   domain.TransactionPool
	filter *Filter

	nearTolerance       decimal.Decimal
	rangeTolerance      decimal.Decimal
	rangeWindow         time.Duration
	requireSameCurrency bool
	excludeClaimed      bool
	maxCandidates       int
	bucketing           domain.BucketGranularity
	timeout             time.Duration
}

// Options are per-call retrieval settings.
type Options struct {
	// Claims reports transactions matched earlier in the run. May be nil.
	Claims domain.ClaimChecker

	// Exclude lists transaction ids that must not be offered.
	Exclude []string

	// IncludeClaimed re-offers claimed transactions (explicit re-evaluation).
	IncludeClaimed bool
}

// New creates a retriever over pool.
func New(pool domain.TransactionPool, cfg domain.MatchingConfig) (*Retriever, error) {
	if pool == nil {
		return nil, &domain.ConfigurationError{Field: "pool", Reason: "is required"}
	}

	filter, err := NewFilter(cfg.CandidateFilter)
	if err != nil {
		return nil, err
	}

	rangeHours := domain.ClampWindow(cfg.RangeWindowHours)
	if rangeHours < cfg.RangeWindowHours {
		slog.Warn("range window clamped",
			"requested_hours", cfg.RangeWindowHours,
			"max_hours", domain.MaxWindowHours,
		)
	}

	return &Retriever{
		pool:                pool,
		filter:              filter,
		nearTolerance:       decimal.NewFromFloat(cfg.AmountTolerancePercent),
		rangeTolerance:      decimal.NewFromFloat(cfg.RangeAmountTolerancePercent),
		rangeWindow:         time.Duration(rangeHours * float64(time.Hour)),
		requireSameCurrency: cfg.RequireSameCurrency,
		excludeClaimed:      cfg.ExcludeAlreadyMatched,
		maxCandidates:       cfg.MaxCandidates,
		bucketing:           cfg.DateBucket,
		timeout:             cfg.RetrievalTimeout,
	}, nil
}

// Retrieve returns candidates for alert ordered by timestamp ascending.
// An empty slice is a valid outcome; pool and claim failures come back as
// *domain.RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, alert *domain.Alert, opts Options) ([]*domain.Transaction, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	currency := ""
	if r.requireSameCurrency {
		currency = alert.Currency
	}

	start, end := r.bucketing.Bounds(alert.Timestamp)
	near, err := r.pool.FindByCompositeKey(ctx, domain.CompositeQuery{
		MinAmount:   lowerBound(alert.Amount, r.nearTolerance),
		MaxAmount:   upperBound(alert.Amount, r.nearTolerance),
		Currency:    currency,
		DateBucket:  r.bucketing.Bucket(alert.Timestamp),
		BucketStart: start,
		BucketEnd:   end,
	})
	if err != nil {
		return nil, &domain.RetrievalError{AlertID: alert.ID, Err: err}
	}

	candidates, err := r.eligible(ctx, alert, near, opts)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		wide, err := r.pool.FindInRange(ctx, domain.RangeQuery{
			MinAmount: lowerBound(alert.Amount, r.rangeTolerance),
			MaxAmount: upperBound(alert.Amount, r.rangeTolerance),
			Currency:  currency,
			From:      alert.Timestamp.Add(-r.rangeWindow),
			To:        alert.Timestamp.Add(r.rangeWindow),
		})
		if err != nil {
			return nil, &domain.RetrievalError{AlertID: alert.ID, Err: err}
		}

		candidates, err = r.eligible(ctx, alert, wide, opts)
		if err != nil {
			return nil, err
		}

		slog.Debug("range fallback used",
			"alert_id", alert.ID,
			"found", len(wide),
			"eligible", len(candidates),
		)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].Timestamp, candidates[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}
	return candidates, nil
}

// eligible drops duplicates, excluded ids, claimed transactions and
// anything the candidate filter rejects.
func (r *Retriever) eligible(ctx context.Context, alert *domain.Alert, txns []*domain.Transaction, opts Options) ([]*domain.Transaction, error) {
	skip := make(map[string]struct{}, len(opts.Exclude)+len(txns))
	for _, id := range opts.Exclude {
		skip[id] = struct{}{}
	}
	checkClaims := r.excludeClaimed && !opts.IncludeClaimed

	out := make([]*domain.Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		if _, ok := skip[txn.ID]; ok {
			continue
		}
		skip[txn.ID] = struct{}{}

		if checkClaims {
			if txn.Claimed {
				continue
			}
			if opts.Claims != nil {
				claimed, err := opts.Claims.IsClaimed(ctx, txn.ID)
				if err != nil {
					return nil, &domain.RetrievalError{AlertID: alert.ID, Err: err}
				}
				if claimed {
					continue
				}
			}
		}

		ok, err := r.filter.Allow(alert, txn)
		if err != nil {
			slog.Warn("candidate filter failed",
				"alert_id", alert.ID,
				"txn_id", txn.ID,
				"error", err,
			)
			continue
		}
		if !ok {
			continue
		}

		out = append(out, txn)
	}
	return out, nil
}

func lowerBound(amount, tolerance decimal.Decimal) decimal.Decimal {
	return amount.Sub(amount.Abs().Mul(tolerance))
}

func upperBound(amount, tolerance decimal.Decimal) decimal.Decimal {
	return amount.Add(amount.Abs().Mul(tolerance))
}
