package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionPool is the queryable store of candidate transactions.
type TransactionPool interface {
	// FindByCompositeKey returns transactions in the given date bucket whose
	// amount lies within [MinAmount, MaxAmount].
	FindByCompositeKey(ctx context.Context, q CompositeQuery) ([]*Transaction, error)

	// FindInRange returns transactions with amount and timestamp inside the
	// given bounds.
	FindInRange(ctx context.Context, q RangeQuery) ([]*Transaction, error)
}

// CompositeQuery is the near lookup. An empty Currency matches any currency.
type CompositeQuery struct {
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	Currency   string
	DateBucket string

	// Bucket bounds, start inclusive and end exclusive.
	BucketStart time.Time
	BucketEnd   time.Time
}

// RangeQuery is the fallback lookup. An empty Currency matches any currency.
type RangeQuery struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Currency  string
	From      time.Time
	To        time.Time
}
