package claims

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-finance/heron/internal/domain"
)

// MemoryStore is a run-scoped claim set guarded by a mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	holders map[string]string // txnID -> alertID
}

// NewMemoryStore creates an empty claim set.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holders: make(map[string]string)}
}

// IsClaimed reports whether txnID has been claimed.
func (s *MemoryStore) IsClaimed(_ context.Context, txnID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.holders[txnID]
	return ok, nil
}

// Claim marks txnID as matched to alertID. Claiming again for the same
// alert is a no-op; claiming for another alert fails.
func (s *MemoryStore) Claim(_ context.Context, txnID string, alertID string) error {
	if txnID == "" || alertID == "" {
		return fmt.Errorf("%w: txnID and alertID are required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.holders[txnID]; ok {
		if holder == alertID {
			return nil
		}
		return fmt.Errorf("%w: %s held by alert %s", domain.ErrAlreadyClaimed, txnID, holder)
	}
	s.holders[txnID] = alertID
	return nil
}

// Release drops the claim on txnID.
func (s *MemoryStore) Release(_ context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holders, txnID)
	return nil
}

// Holder returns the alert holding txnID, or "".
func (s *MemoryStore) Holder(txnID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holders[txnID]
}

// Len returns the number of claims.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.holders)
}
