package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/heron/internal/claims"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/pool"
)

var alertTime = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func txn(id string, amount int64, currency string, offset time.Duration) *domain.Transaction {
	return domain.NewTransaction(id, decimal.NewFromInt(amount), currency, alertTime.Add(offset), "REF-"+id)
}

func testAlert() *domain.Alert {
	return domain.NewAlert("alert-1", decimal.NewFromInt(10000), "NGN", alertTime, "REF")
}

func newRetriever(t *testing.T, p domain.TransactionPool, mutate func(*domain.MatchingConfig)) *Retriever {
	t.Helper()
	cfg := domain.DefaultMatchingConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := New(p, cfg)
	require.NoError(t, err)
	return r
}

func ids(txns []*domain.Transaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}

type failingPool struct {
	err error
}

func (f failingPool) FindByCompositeKey(context.Context, domain.CompositeQuery) ([]*domain.Transaction, error) {
	return nil, f.err
}

func (f failingPool) FindInRange(context.Context, domain.RangeQuery) ([]*domain.Transaction, error) {
	return nil, f.err
}

type failingClaims struct{}

func (failingClaims) IsClaimed(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestNearLookup(t *testing.T) {
	p := pool.NewMemoryPool(
		txn("near-late", 10050, "NGN", 3*time.Hour),
		txn("near-early", 9950, "NGN", -2*time.Hour),
		txn("too-far", 10200, "NGN", time.Hour),     // outside 1%
		txn("wrong-ccy", 10000, "USD", time.Hour),   // currency mismatch
		txn("next-day", 10000, "NGN", 13*time.Hour), // different bucket
	)
	r := newRetriever(t, p, nil)

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"near-early", "near-late"}, ids(got), "ordered by timestamp")
}

func TestCurrencyNotRequired(t *testing.T) {
	p := pool.NewMemoryPool(txn("usd", 10000, "USD", time.Hour))
	r := newRetriever(t, p, func(c *domain.MatchingConfig) { c.RequireSameCurrency = false })

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"usd"}, ids(got))
}

func TestRangeFallback(t *testing.T) {
	p := pool.NewMemoryPool(
		txn("wide-amount", 10400, "NGN", -20*time.Hour), // 4%, previous day
		txn("wide-time", 10000, "NGN", 70*time.Hour),
		txn("outside-window", 10000, "NGN", 73*time.Hour),
		txn("outside-amount", 10600, "NGN", 20*time.Hour),
	)
	r := newRetriever(t, p, nil)

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"wide-amount", "wide-time"}, ids(got))
}

func TestFallbackOnlyWhenNearIsEmpty(t *testing.T) {
	p := pool.NewMemoryPool(
		txn("near", 10000, "NGN", time.Hour),
		txn("wide", 10400, "NGN", -20*time.Hour),
	)
	r := newRetriever(t, p, nil)

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, ids(got))
}

func TestRangeWindowIsClamped(t *testing.T) {
	p := pool.NewMemoryPool(
		txn("week", 10000, "NGN", 167*time.Hour),
		txn("beyond", 10000, "NGN", 169*time.Hour),
	)
	r := newRetriever(t, p, func(c *domain.MatchingConfig) { c.RangeWindowHours = 1000 })

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"week"}, ids(got))
}

func TestClaimExclusion(t *testing.T) {
	claimedFlag := txn("flagged", 10000, "NGN", time.Hour)
	claimedFlag.Claimed = true
	p := pool.NewMemoryPool(
		claimedFlag,
		txn("claimed-in-run", 10000, "NGN", 2*time.Hour),
		txn("free", 10000, "NGN", 3*time.Hour),
	)
	store := claims.NewMemoryStore()
	require.NoError(t, store.Claim(context.Background(), "claimed-in-run", "alert-0"))

	r := newRetriever(t, p, nil)
	alert := testAlert()

	got, err := r.Retrieve(context.Background(), alert, Options{Claims: store})
	require.NoError(t, err)
	assert.Equal(t, []string{"free"}, ids(got))

	got, err = r.Retrieve(context.Background(), alert, Options{Claims: store, IncludeClaimed: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"flagged", "claimed-in-run", "free"}, ids(got), "explicit re-evaluation")

	got, err = r.Retrieve(context.Background(), alert, Options{Claims: store, Exclude: []string{"free"}})
	require.NoError(t, err)
	assert.Empty(t, got)

	disabled := newRetriever(t, p, func(c *domain.MatchingConfig) { c.ExcludeAlreadyMatched = false })
	got, err = disabled.Retrieve(context.Background(), alert, Options{Claims: store})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestTruncation(t *testing.T) {
	p := pool.NewMemoryPool()
	for i := 0; i < 60; i++ {
		p.Add(txn(fmt.Sprintf("t%02d", i), 10000, "NGN", time.Duration(59-i)*time.Minute))
	}
	r := newRetriever(t, p, nil)

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	require.Len(t, got, 50)
	assert.Equal(t, "t59", got[0].ID, "earliest first")
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestEmptyPoolIsNotAnError(t *testing.T) {
	r := newRetriever(t, pool.NewMemoryPool(), nil)

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrievalErrors(t *testing.T) {
	cause := errors.New("database is locked")
	r := newRetriever(t, failingPool{err: cause}, nil)

	_, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.ErrorIs(t, err, cause)

	p := pool.NewMemoryPool(txn("t1", 10000, "NGN", time.Hour))
	r = newRetriever(t, p, nil)
	_, err = r.Retrieve(context.Background(), testAlert(), Options{Claims: failingClaims{}})
	var rerr *domain.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "alert-1", rerr.AlertID)
}

func TestCandidateFilter(t *testing.T) {
	internal := txn("internal", 10000, "NGN", time.Hour)
	internal.Source = "internal-transfer"
	p := pool.NewMemoryPool(internal, txn("gateway", 10000, "NGN", 2*time.Hour))

	r := newRetriever(t, p, func(c *domain.MatchingConfig) {
		c.CandidateFilter = `txn.source != "internal-transfer" && hours_apart < 24.0`
	})

	got, err := r.Retrieve(context.Background(), testAlert(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gateway"}, ids(got))
}

func TestInvalidCandidateFilter(t *testing.T) {
	cfg := domain.DefaultMatchingConfig()

	cfg.CandidateFilter = "txn.amount >"
	_, err := New(pool.NewMemoryPool(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	cfg.CandidateFilter = "txn.amount * 2.0"
	_, err = New(pool.NewMemoryPool(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "must return bool")

	_, err = New(nil, domain.DefaultMatchingConfig())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
