package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

var baseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func testParams() Params {
	return Params{
		AmountTolerance: 0.01,
		TimeWindow:      48 * time.Hour,
		Bucketing:       domain.BucketDay,
	}
}

func alertAt(amount int64, ref string, ts time.Time) *domain.Alert {
	return domain.NewAlert("alert-1", decimal.NewFromInt(amount), "NGN", ts, ref)
}

func txnAt(id string, amount int64, ref string, ts time.Time) *domain.Transaction {
	return domain.NewTransaction(id, decimal.NewFromInt(amount), "NGN", ts, ref)
}

func TestRuleSetCreation(t *testing.T) {
	set, err := NewRuleSet(domain.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("failed to create rule set: %v", err)
	}

	rules := set.Rules()
	if len(rules) != 7 {
		t.Fatalf("expected 7 rules, got %d", len(rules))
	}

	sum := 0.0
	for i, r := range rules {
		if r.Name != domain.RuleNames[i] {
			t.Errorf("expected rule %d to be %s, got %s", i, domain.RuleNames[i], r.Name)
		}
		sum += r.Weight
	}
	if math.Abs(sum-1.0) > domain.WeightTolerance {
		t.Errorf("expected weights to sum to 1.0, got %f", sum)
	}

	if got := set.Params().TimeWindow; got != 48*time.Hour {
		t.Errorf("expected 48h window, got %v", got)
	}
}

func TestRuleSetRejectsBadWeights(t *testing.T) {
	cfg := domain.DefaultMatchingConfig()
	cfg.RuleWeights[domain.RuleExactAmount] = 0.40

	_, err := NewRuleSet(cfg)
	if err == nil {
		t.Fatal("expected error for weights summing to 1.15")
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRuleSetClampsWindow(t *testing.T) {
	cfg := domain.DefaultMatchingConfig()
	cfg.TimeWindowHours = 1000

	set, err := NewRuleSet(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Params().TimeWindow; got != 168*time.Hour {
		t.Errorf("expected window clamped to 168h, got %v", got)
	}
}

func TestExactAmount(t *testing.T) {
	alert := alertAt(23500, "", baseTime)

	tests := []struct {
		amount int64
		want   float64
	}{
		{23500, 1.0},
		{23700, 0.95},
		{23265, 0.95}, // exactly 1% below
		{25000, 0.0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.amount), func(t *testing.T) {
			got, _ := exactAmount(alert, txnAt("t", tt.amount, "", baseTime), testParams())
			if got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}

	t.Run("missing amount", func(t *testing.T) {
		txn := txnAt("t", 0, "", baseTime)
		got, details := exactAmount(alert, txn, testParams())
		if got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
		if details["reason"] != "amount missing" {
			t.Errorf("expected missing reason, got %v", details)
		}
	})
}

func TestExactReference(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "GTB/CR/2025/001", "GTB/CR/2025/001", 1.0},
		{"punctuation only", "GTB/CR/2025/001", "GTBCR2025001", 1.0},
		{"case differs", "GTB/CR/2025/001", "gtb cr 2025 001", 0.95},
		{"different", "GTB/CR/2025/001", "GTB/CR/2025/002", 0.0},
		{"missing", "", "GTB/CR/2025/001", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := exactReference(alertAt(1, tt.a, baseTime), txnAt("t", 1, tt.b, baseTime), testParams())
			if got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestFuzzyReference(t *testing.T) {
	got, _ := fuzzyReference(alertAt(1, "GTB/TRF/2025/001", baseTime), txnAt("t", 1, "GTB TRF 2025 001", baseTime), testParams())
	if got < 0.999 {
		t.Errorf("expected ~1.0 for reordered punctuation, got %f", got)
	}

	got, _ = fuzzyReference(alertAt(1, "", baseTime), txnAt("t", 1, "GTB", baseTime), testParams())
	if got != 0 {
		t.Errorf("expected 0 for missing reference, got %f", got)
	}
}

func TestTimestampProximity(t *testing.T) {
	alert := alertAt(1, "", baseTime)

	tests := []struct {
		name   string
		offset time.Duration
		want   float64
	}{
		{"30 minutes", 30 * time.Minute, 1.0},
		{"1 hour", time.Hour, 1.0},
		{"24.5 hours", 24*time.Hour + 30*time.Minute, 0.5},
		{"48 hours", 48 * time.Hour, 0.0},
		{"72 hours", 72 * time.Hour, 0.0},
		{"30 minutes before", -30 * time.Minute, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := timestampProximity(alert, txnAt("t", 1, "", baseTime.Add(tt.offset)), testParams())
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.3f, got %.3f", tt.want, got)
			}
		})
	}
}

func TestAccountMatch(t *testing.T) {
	tests := []struct {
		name       string
		alertLast4 string
		alertFull  string
		txnLast4   string
		txnFull    string
		want       float64
	}{
		{"last4 equal", "1234", "", "1234", "", 1.0},
		{"last4 differ", "1234", "", "9876", "", 0.0},
		{"one digit off is below floor", "1234", "", "1235", "", 0.0},
		{"full numbers equal", "", "0123456789", "", "0123-456-789", 1.0},
		{"full numbers one digit off", "", "0123456789", "", "0123456780", 0.9},
		{"last4 derived from full", "", "0123456789", "6789", "", 1.0},
		{"missing", "", "", "1234", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := alertAt(1, "", baseTime)
			alert.AccountLast4, alert.AccountNumber = tt.alertLast4, tt.alertFull
			txn := txnAt("t", 1, "", baseTime)
			txn.AccountLast4, txn.AccountNumber = tt.txnLast4, tt.txnFull

			got, _ := accountMatch(alert, txn, testParams())
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
		})
	}
}

func TestCompositeKeyPartial(t *testing.T) {
	alert := alertAt(50000, "GTB/CR/2025/001", baseTime)
	alert.AccountLast4 = "1234"

	same := txnAt("t", 50000, "GTB CR 2025 001", baseTime.Add(2*time.Hour))
	same.AccountLast4 = "1234"

	got, _ := compositeKeyPartial(alert, same, testParams())
	if got != 1.0 {
		t.Errorf("expected all five sub-checks to match, got %f", got)
	}

	other := txnAt("t", 50001, "GTB CR 2025 001", baseTime.Add(2*time.Hour))
	other.AccountLast4 = "1234"
	got, details := compositeKeyPartial(alert, other, testParams())
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("expected 0.8 with amount mismatch, got %f", got)
	}
	if details["amount"] != "mismatch" {
		t.Errorf("expected amount mismatch detail, got %v", details)
	}

	bare := txnAt("t", 1, "", baseTime.AddDate(0, 0, 2))
	bare.Currency = "USD"
	got, _ = compositeKeyPartial(alert, bare, testParams())
	if got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestBankMatch(t *testing.T) {
	alert := alertAt(1, "", baseTime)
	alert.BankCode = "GTB"
	alert.EnrichmentConfidence = 0.9

	txn := txnAt("t", 1, "", baseTime)
	txn.BankCode = "gtb"

	if got, _ := bankMatch(alert, txn, testParams()); got != 0.9 {
		t.Errorf("expected 0.9, got %f", got)
	}

	txn.BankCode = "ZEN"
	if got, _ := bankMatch(alert, txn, testParams()); got != 0 {
		t.Errorf("expected 0 for different bank, got %f", got)
	}

	txn.BankCode = ""
	if got, _ := bankMatch(alert, txn, testParams()); got != 0 {
		t.Errorf("expected 0 without enrichment, got %f", got)
	}

	txn.BankCode = "GTB"
	alert.EnrichmentConfidence = 0
	if got, _ := bankMatch(alert, txn, testParams()); got != 0 {
		t.Errorf("expected 0 without confidence, got %f", got)
	}
}

func TestEvaluateAll(t *testing.T) {
	set, err := NewRuleSet(domain.DefaultMatchingConfig())
	if err != nil {
		t.Fatalf("failed to create rule set: %v", err)
	}

	alert := alertAt(50000, "GTB/CR/2025/001", baseTime)
	txns := make([]*domain.Transaction, 25)
	for i := range txns {
		txns[i] = txnAt(fmt.Sprintf("txn-%02d", i), 50000+int64(i)*100, "GTB/CR/2025/001", baseTime.Add(time.Duration(i)*time.Hour))
	}

	results, err := set.EvaluateAll(context.Background(), alert, txns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(txns) {
		t.Fatalf("expected %d results, got %d", len(txns), len(results))
	}

	for i, scores := range results {
		if len(scores) != 7 {
			t.Fatalf("candidate %d: expected 7 rule scores, got %d", i, len(scores))
		}
		for _, rs := range scores {
			if rs.Score < 0 || rs.Score > 1 {
				t.Errorf("candidate %d rule %s: score %f out of range", i, rs.Rule, rs.Score)
			}
			if math.Abs(rs.Contribution-rs.Score*rs.Weight) > 1e-12 {
				t.Errorf("candidate %d rule %s: contribution mismatch", i, rs.Rule)
			}
		}
	}

	// results follow input order: the first candidate is the exact one
	if results[0][0].Score != 1.0 {
		t.Errorf("expected exact amount on first candidate, got %f", results[0][0].Score)
	}
	if results[24][0].Score != 0 {
		t.Errorf("expected amount mismatch on last candidate, got %f", results[24][0].Score)
	}
}

func TestEvaluateAllCancelled(t *testing.T) {
	set, _ := NewRuleSet(domain.DefaultMatchingConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := set.EvaluateAll(ctx, alertAt(1, "", baseTime), []*domain.Transaction{txnAt("t", 1, "", baseTime)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEvaluateAllEmpty(t *testing.T) {
	set, _ := NewRuleSet(domain.DefaultMatchingConfig())

	results, err := set.EvaluateAll(context.Background(), alertAt(1, "", baseTime), nil)
	if err != nil || results != nil {
		t.Errorf("expected nil results for no candidates, got %v, %v", results, err)
	}
}
