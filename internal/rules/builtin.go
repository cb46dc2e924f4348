package rules

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/fuzzy"
)

const (
	// scoreNearExact is awarded for matches that only differ within tolerance
	// or by case and punctuation.
	scoreNearExact = 0.95

	// accountFuzzyFloor is the lowest fuzzy account similarity that counts.
	accountFuzzyFloor = 0.80

	// proximityFullScore is the gap that still scores 1.0.
	proximityFullScore = time.Hour
)

func missing(what string) map[string]string {
	return map[string]string{"reason": what + " missing"}
}

func exactAmount(a *domain.Alert, t *domain.Transaction, p Params) (float64, map[string]string) {
	if a.Amount.IsZero() || t.Amount.IsZero() {
		return 0, missing("amount")
	}
	if a.Amount.Equal(t.Amount) {
		return 1, map[string]string{"match": "exact"}
	}

	diff := a.Amount.Sub(t.Amount).Abs()
	limit := a.Amount.Abs().Mul(decimal.NewFromFloat(p.AmountTolerance))
	details := map[string]string{"difference": diff.String()}
	if diff.LessThanOrEqual(limit) {
		details["match"] = "within_tolerance"
		return scoreNearExact, details
	}
	return 0, details
}

func exactReference(a *domain.Alert, t *domain.Transaction, _ Params) (float64, map[string]string) {
	ra, rt := a.Reference, t.Reference
	if ra.IsEmpty() || rt.IsEmpty() {
		return 0, missing("reference")
	}
	if ra.Alnum == rt.Alnum {
		return 1, map[string]string{"match": "alphanumeric"}
	}
	if strings.EqualFold(ra.Alnum, rt.Alnum) || ra.Cleaned() == rt.Cleaned() {
		return scoreNearExact, map[string]string{"match": "cleaned"}
	}
	return 0, nil
}

func fuzzyReference(a *domain.Alert, t *domain.Transaction, _ Params) (float64, map[string]string) {
	if a.Reference.IsEmpty() || t.Reference.IsEmpty() {
		return 0, missing("reference")
	}
	return fuzzy.Comprehensive(a.Reference.Raw, t.Reference.Raw), nil
}

func timestampProximity(a *domain.Alert, t *domain.Transaction, p Params) (float64, map[string]string) {
	if a.Timestamp.IsZero() || t.Timestamp.IsZero() {
		return 0, missing("timestamp")
	}

	gap := a.Timestamp.Sub(t.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	details := map[string]string{"gap": gap.String()}

	switch {
	case gap <= proximityFullScore:
		return 1, details
	case gap >= p.TimeWindow:
		return 0, details
	default:
		decay := float64(gap-proximityFullScore) / float64(p.TimeWindow-proximityFullScore)
		return 1 - decay, details
	}
}

func accountMatch(a *domain.Alert, t *domain.Transaction, _ Params) (float64, map[string]string) {
	fullA, fullT := digitsOnly(a.AccountNumber), digitsOnly(t.AccountNumber)
	if fullA != "" && fullT != "" {
		if fullA == fullT {
			return 1, map[string]string{"match": "account_number"}
		}
		return fuzzyAccount(fullA, fullT)
	}

	lastA, lastT := last4(a.AccountLast4, fullA), last4(t.AccountLast4, fullT)
	if lastA == "" || lastT == "" {
		return 0, missing("account")
	}
	if lastA == lastT {
		return 1, map[string]string{"match": "last4"}
	}
	return fuzzyAccount(lastA, lastT)
}

func fuzzyAccount(a, b string) (float64, map[string]string) {
	if s := fuzzy.EditDistanceRatio(a, b); s >= accountFuzzyFloor {
		return s, map[string]string{"match": "fuzzy"}
	}
	return 0, nil
}

func last4(explicit, full string) string {
	if explicit = digitsOnly(explicit); explicit != "" {
		return explicit
	}
	if len(full) >= 4 {
		return full[len(full)-4:]
	}
	return ""
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func compositeKeyPartial(a *domain.Alert, t *domain.Transaction, p Params) (float64, map[string]string) {
	ka, kt := a.CompositeKey(p.Bucketing), t.CompositeKey(p.Bucketing)

	checks := []struct {
		name string
		ok   bool
	}{
		{"amount", !a.Amount.IsZero() && ka.Amount == kt.Amount},
		{"currency", ka.Currency != "" && ka.Currency == kt.Currency},
		{"date_bucket", !a.Timestamp.IsZero() && !t.Timestamp.IsZero() && ka.DateBucket == kt.DateBucket},
		{"reference_tokens", sharesToken(ka.Tokens, kt.Tokens)},
		{"account_last4", ka.AccountLast4 != "" && ka.AccountLast4 == kt.AccountLast4},
	}

	matched := 0
	details := make(map[string]string, len(checks))
	for _, c := range checks {
		if c.ok {
			matched++
			details[c.name] = "match"
		} else {
			details[c.name] = "mismatch"
		}
	}
	return float64(matched) / float64(len(checks)), details
}

func sharesToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func bankMatch(a *domain.Alert, t *domain.Transaction, _ Params) (float64, map[string]string) {
	if a.BankCode == "" || t.BankCode == "" {
		return 0, missing("bank")
	}
	if a.EnrichmentConfidence <= 0 {
		return 0, missing("enrichment confidence")
	}
	if !strings.EqualFold(a.BankCode, t.BankCode) {
		return 0, nil
	}
	return a.EnrichmentConfidence, map[string]string{"bank": a.BankCode}
}
