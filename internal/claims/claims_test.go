package claims

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/heron/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("ClaimAndCheck", func(t *testing.T) {
		if err := store.Claim(ctx, "txn-1", "alert-1"); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}

		claimed, err := store.IsClaimed(ctx, "txn-1")
		if err != nil {
			t.Fatalf("IsClaimed failed: %v", err)
		}
		if !claimed {
			t.Error("expected txn-1 to be claimed")
		}
		if store.Holder("txn-1") != "alert-1" {
			t.Errorf("expected holder alert-1, got %s", store.Holder("txn-1"))
		}
	})

	t.Run("SameAlertIsIdempotent", func(t *testing.T) {
		if err := store.Claim(ctx, "txn-1", "alert-1"); err != nil {
			t.Errorf("expected repeated claim by same alert to succeed, got %v", err)
		}
	})

	t.Run("OtherAlertConflicts", func(t *testing.T) {
		err := store.Claim(ctx, "txn-1", "alert-2")
		if !errors.Is(err, domain.ErrAlreadyClaimed) {
			t.Errorf("expected ErrAlreadyClaimed, got %v", err)
		}
	})

	t.Run("Release", func(t *testing.T) {
		if err := store.Release(ctx, "txn-1"); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		claimed, _ := store.IsClaimed(ctx, "txn-1")
		if claimed {
			t.Error("expected txn-1 to be released")
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := store.Claim(ctx, "", "alert-1")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestMemoryStoreConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.Claim(ctx, "contested", fmt.Sprintf("alert-%d", n)); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winning claim, got %d", wins.Load())
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 claim, got %d", store.Len())
	}
}

func TestNew(t *testing.T) {
	store, err := New(domain.ClaimStoreConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", store)
	}

	if _, err := New(domain.ClaimStoreConfig{Type: "etcd"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("HERON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HERON_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(addr, "", 0, uuid.New().String(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Claim(ctx, "txn-1", "alert-1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.Claim(ctx, "txn-1", "alert-1"); err != nil {
		t.Errorf("expected idempotent claim, got %v", err)
	}
	if err := store.Claim(ctx, "txn-1", "alert-2"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}

	claimed, err := store.IsClaimed(ctx, "txn-1")
	if err != nil || !claimed {
		t.Errorf("expected claimed, got %v, %v", claimed, err)
	}

	if err := store.Release(ctx, "txn-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	claimed, _ = store.IsClaimed(ctx, "txn-1")
	if claimed {
		t.Error("expected release to drop the claim")
	}
}
