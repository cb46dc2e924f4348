package decision

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/claims"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/pool"
)

var alertTime = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func gtbAlert(id string) *domain.Alert {
	a := domain.NewAlert(id, decimal.NewFromInt(50000), "NGN", alertTime, "GTB/CR/2025/001")
	a.AccountLast4 = "1234"
	a.BankCode = "GTB"
	a.EnrichmentConfidence = 1.0
	return a
}

func gtbTxn(id string, offset time.Duration) *domain.Transaction {
	t := domain.NewTransaction(id, decimal.NewFromInt(50000), "NGN", alertTime.Add(offset), "GTB/CR/2025/001")
	t.AccountLast4 = "1234"
	t.BankCode = "GTB"
	return t
}

func newEngine(t *testing.T, p domain.TransactionPool) *Engine {
	t.Helper()
	engine, err := New(domain.DefaultMatchingConfig(), p)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

type brokenPool struct{}

func (brokenPool) FindByCompositeKey(context.Context, domain.CompositeQuery) ([]*domain.Transaction, error) {
	return nil, errors.New("pool unavailable")
}

func (brokenPool) FindInRange(context.Context, domain.RangeQuery) ([]*domain.Transaction, error) {
	return nil, errors.New("pool unavailable")
}

func TestThresholds(t *testing.T) {
	th, err := NewThresholds(0.80, 0.60, 0.40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		score float64
		want  domain.MatchStatus
		note  string
	}{
		{0.95, domain.StatusAutoMatched, "auto-match"},
		{0.80, domain.StatusAutoMatched, "auto-match"},
		{0.79, domain.StatusNeedsReview, "review threshold"},
		{0.60, domain.StatusNeedsReview, "review threshold"},
		{0.50, domain.StatusRejected, "between reject threshold"},
		{0.10, domain.StatusRejected, "below reject threshold"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			status, note := th.Classify(tt.score)
			if status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, status)
			}
			if !strings.Contains(note, tt.note) {
				t.Errorf("expected note to mention %q, got %q", tt.note, note)
			}
		})
	}

	if _, err := NewThresholds(0.60, 0.80, 0.40); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error for unordered thresholds, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := domain.DefaultMatchingConfig()
	cfg.RuleWeights[domain.RuleBankMatch] = 0.5

	_, err := New(cfg, pool.NewMemoryPool())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	_, err = New(domain.DefaultMatchingConfig(), nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error for missing pool, got %v", err)
	}
}

func TestMatchAutoMatched(t *testing.T) {
	engine := newEngine(t, pool.NewMemoryPool(gtbTxn("txn-1", time.Minute)))

	decision, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if decision.Status != domain.StatusAutoMatched {
		t.Errorf("expected auto_matched, got %s", decision.Status)
	}
	if !decision.Matched {
		t.Error("expected Matched to be true")
	}
	if decision.Confidence < 0.95 {
		t.Errorf("expected confidence >= 0.95, got %.3f", decision.Confidence)
	}
	if decision.TransactionID() != "txn-1" {
		t.Errorf("expected txn-1, got %s", decision.TransactionID())
	}
	if decision.Confidence != decision.BestCandidate.TotalScore {
		t.Error("confidence must equal the best candidate's total score")
	}
	if decision.BestCandidate.Rank != 1 {
		t.Errorf("expected rank 1, got %d", decision.BestCandidate.Rank)
	}
}

func TestMatchDebitAmount(t *testing.T) {
	txn := gtbTxn("txn-debit", time.Minute)
	txn.Amount = txn.Amount.Neg()
	engine := newEngine(t, pool.NewMemoryPool(gtbTxn("txn-credit", time.Minute), txn))

	alert := gtbAlert("alert-debit")
	alert.Amount = alert.Amount.Neg()

	decision, err := engine.Match(context.Background(), alert, nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if decision.Status != domain.StatusAutoMatched {
		t.Errorf("expected auto_matched, got %s: %v", decision.Status, decision.Notes)
	}
	if decision.TransactionID() != "txn-debit" {
		t.Errorf("expected txn-debit, got %s", decision.TransactionID())
	}
}

func TestMatchNoCandidates(t *testing.T) {
	engine := newEngine(t, pool.NewMemoryPool())

	decision, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if decision.Status != domain.StatusNoCandidates {
		t.Errorf("expected no_candidates, got %s", decision.Status)
	}
	if decision.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", decision.Confidence)
	}
	if decision.BestCandidate != nil {
		t.Error("expected no best candidate")
	}
	if decision.Matched {
		t.Error("expected Matched to be false")
	}
}

func TestMatchAlternativesAndReview(t *testing.T) {
	near := gtbTxn("near", 20*time.Hour)
	near.Reference = domain.NewReference("GTB/CR/2025/777")
	far := gtbTxn("far", 40*time.Hour)
	far.Reference = domain.NewReference("unrelated")
	far.BankCode = ""

	engine := newEngine(t, pool.NewMemoryPool(far, near))
	decision, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if decision.TransactionID() != "near" {
		t.Errorf("expected near as best candidate, got %s", decision.TransactionID())
	}
	if len(decision.Alternatives) != 1 || decision.Alternatives[0].Transaction.ID != "far" {
		t.Fatalf("expected far as the only alternative, got %+v", decision.Alternatives)
	}
	if decision.Alternatives[0].Rank != 2 {
		t.Errorf("expected alternative rank 2, got %d", decision.Alternatives[0].Rank)
	}
	if decision.Status == domain.StatusAutoMatched {
		t.Errorf("expected a partial match below auto threshold, got confidence %.3f", decision.Confidence)
	}
}

func TestMatchValidationError(t *testing.T) {
	engine := newEngine(t, pool.NewMemoryPool())

	alert := gtbAlert("alert-1")
	alert.Currency = ""

	_, err := engine.Match(context.Background(), alert, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "currency" {
		t.Errorf("expected currency field, got %s", verr.Field)
	}
}

func TestMatchRetrievalError(t *testing.T) {
	engine := newEngine(t, brokenPool{})

	_, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	p := pool.NewMemoryPool(
		gtbTxn("a", 30*time.Minute),
		gtbTxn("b", -30*time.Minute),
		gtbTxn("c", 3*time.Hour),
	)
	engine := newEngine(t, p)

	first, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := engine.Match(context.Background(), gtbAlert("alert-1"), nil)
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatal("expected identical decisions for identical inputs")
		}
	}
}

func TestRematchAndCommit(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, pool.NewMemoryPool(gtbTxn("txn-1", time.Minute)))
	store := claims.NewMemoryStore()

	decision, err := engine.Match(ctx, gtbAlert("alert-1"), store)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if err := engine.Commit(ctx, decision, store); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	after, _ := engine.Match(ctx, gtbAlert("alert-2"), store)
	if after.Status != domain.StatusNoCandidates {
		t.Errorf("expected claimed transaction to be excluded, got %s", after.Status)
	}

	again, _ := engine.Rematch(ctx, gtbAlert("alert-2"), store, RematchOptions{IncludeClaimed: true})
	if again.TransactionID() != "txn-1" {
		t.Errorf("expected re-evaluation to offer txn-1, got %q", again.TransactionID())
	}

	excluded, _ := engine.Rematch(ctx, gtbAlert("alert-2"), store, RematchOptions{IncludeClaimed: true, Exclude: []string{"txn-1"}})
	if excluded.Status != domain.StatusNoCandidates {
		t.Errorf("expected no candidates with txn-1 excluded, got %s", excluded.Status)
	}

	err = engine.Commit(ctx, after, store)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput committing an empty decision, got %v", err)
	}
}
