// Package pool provides an in-memory transaction pool.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// MemoryPool keeps transactions in insertion order. Safe for concurrent use.
type MemoryPool struct {
	mu   sync.RWMutex
	txns []*domain.Transaction
	byID map[string]int
}

// NewMemoryPool creates a pool holding txns.
func NewMemoryPool(txns ...*domain.Transaction) *MemoryPool {
	p := &MemoryPool{byID: make(map[string]int)}
	p.Add(txns...)
	return p
}

// Add inserts transactions, replacing any with the same id.
func (p *MemoryPool) Add(txns ...*domain.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, txn := range txns {
		if txn == nil {
			continue
		}
		if idx, ok := p.byID[txn.ID]; ok {
			p.txns[idx] = txn
			continue
		}
		p.byID[txn.ID] = len(p.txns)
		p.txns = append(p.txns, txn)
	}
}

// Get returns the transaction with the given id.
func (p *MemoryPool) Get(id string) (*domain.Transaction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return p.txns[idx], nil
}

// Len returns the number of transactions.
func (p *MemoryPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txns)
}

// FindByCompositeKey implements domain.TransactionPool.
func (p *MemoryPool) FindByCompositeKey(ctx context.Context, q domain.CompositeQuery) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.find(func(t *domain.Transaction) bool {
		return inAmount(t.Amount, q.MinAmount, q.MaxAmount) &&
			sameCurrency(t.Currency, q.Currency) &&
			!t.Timestamp.Before(q.BucketStart) &&
			t.Timestamp.Before(q.BucketEnd)
	}), nil
}

// FindInRange implements domain.TransactionPool.
func (p *MemoryPool) FindInRange(ctx context.Context, q domain.RangeQuery) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.find(func(t *domain.Transaction) bool {
		return inAmount(t.Amount, q.MinAmount, q.MaxAmount) &&
			sameCurrency(t.Currency, q.Currency) &&
			!t.Timestamp.Before(q.From) &&
			!t.Timestamp.After(q.To)
	}), nil
}

func (p *MemoryPool) find(match func(*domain.Transaction) bool) []*domain.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range p.txns {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func inAmount(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
}

func sameCurrency(have, want string) bool {
	return want == "" || have == want
}

// IsClaimed implements domain.ClaimChecker from the transactions' own
// claim flags. Unknown ids are not claimed.
func (p *MemoryPool) IsClaimed(_ context.Context, txnID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.byID[txnID]
	if !ok {
		return false, nil
	}
	return p.txns[idx].Claimed, nil
}
