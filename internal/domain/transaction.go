package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record holds the fields shared by normalized alerts and transactions.
// Both sides arrive already normalized; the engine never mutates them.
type Record struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
	Reference Reference       `json:"reference"`

	// Optional account details
	AccountLast4  string `json:"accountLast4,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`

	// Optional enrichment. EnrichmentConfidence is 0 when no bank was identified.
	BankCode             string  `json:"bankCode,omitempty"`
	EnrichmentConfidence float64 `json:"enrichmentConfidence,omitempty"`
}

// Alert is a normalized bank-alert record waiting to be reconciled.
type Alert struct {
	Record
}

// Transaction is a normalized record from a transaction source.
type Transaction struct {
	Record

	// Source identifies the upstream system the record came from.
	Source string `json:"source,omitempty"`

	// Claim state. Set once, when a match is committed.
	Claimed   bool       `json:"claimed"`
	ClaimedBy string     `json:"claimedBy,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}

// NewRecord builds a record with canonical currency, UTC timestamp and a
// tokenized reference.
func NewRecord(id string, amount decimal.Decimal, currency string, ts time.Time, reference string) Record {
	return Record{
		ID:        id,
		Amount:    amount,
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		Timestamp: ts.UTC(),
		Reference: NewReference(reference),
	}
}

// NewAlert is shorthand for an alert built from NewRecord.
func NewAlert(id string, amount decimal.Decimal, currency string, ts time.Time, reference string) *Alert {
	return &Alert{Record: NewRecord(id, amount, currency, ts, reference)}
}

// NewTransaction is shorthand for an unclaimed transaction built from NewRecord.
func NewTransaction(id string, amount decimal.Decimal, currency string, ts time.Time, reference string) *Transaction {
	return &Transaction{Record: NewRecord(id, amount, currency, ts, reference)}
}

// Validate reports the first missing required field of an alert.
// Reference, account and bank data are optional. A zero amount counts as
// missing; negative amounts (debits) are matched by value.
func (a *Alert) Validate() error {
	switch {
	case a == nil:
		return &ValidationError{Field: "alert", Reason: "is nil"}
	case strings.TrimSpace(a.ID) == "":
		return &ValidationError{Field: "id", Reason: "is required"}
	case a.Amount.IsZero():
		return &ValidationError{AlertID: a.ID, Field: "amount", Reason: "is required"}
	case strings.TrimSpace(a.Currency) == "":
		return &ValidationError{AlertID: a.ID, Field: "currency", Reason: "is required"}
	case a.Timestamp.IsZero():
		return &ValidationError{AlertID: a.ID, Field: "timestamp", Reason: "is required"}
	}
	return nil
}

// BucketGranularity controls how timestamps are grouped in composite keys.
type BucketGranularity string

const (
	BucketDay  BucketGranularity = "day"
	BucketHour BucketGranularity = "hour"
)

// Bucket returns the bucket label for t.
func (g BucketGranularity) Bucket(t time.Time) string {
	if g == BucketHour {
		return t.UTC().Format("2006-01-02T15")
	}
	return t.UTC().Format("2006-01-02")
}

// Bounds returns the start (inclusive) and end (exclusive) of t's bucket.
func (g BucketGranularity) Bounds(t time.Time) (time.Time, time.Time) {
	if g == BucketHour {
		start := t.UTC().Truncate(time.Hour)
		return start, start.Add(time.Hour)
	}
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Valid reports whether g is a known granularity.
func (g BucketGranularity) Valid() bool {
	return g == BucketDay || g == BucketHour
}

// CompositeKey is the derived lookup key of a record:
// amount|currency|date-bucket|top reference tokens|account-last-4.
type CompositeKey struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	DateBucket   string   `json:"dateBucket"`
	Tokens       []string `json:"tokens"`
	AccountLast4 string   `json:"accountLast4"`
}

// String renders the key in its pipe-separated form.
func (k CompositeKey) String() string {
	return strings.Join([]string{
		k.Amount,
		k.Currency,
		k.DateBucket,
		strings.Join(k.Tokens, " "),
		k.AccountLast4,
	}, "|")
}

// CompositeKeyTokens is the number of reference tokens carried in a composite key.
const CompositeKeyTokens = 3

// CompositeKey derives the record's composite key.
func (r Record) CompositeKey(g BucketGranularity) CompositeKey {
	return CompositeKey{
		Amount:       r.Amount.StringFixed(2),
		Currency:     r.Currency,
		DateBucket:   g.Bucket(r.Timestamp),
		Tokens:       r.Reference.TopTokens(CompositeKeyTokens),
		AccountLast4: r.AccountLast4,
	}
}
