package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/heron/internal/domain"
)

// claimScript sets the claim if absent. It returns 1 when the caller holds
// the claim afterwards and 0 when another alert does.
var claimScript = redis.NewScript(`
	local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
	if ok then
		return 1
	end
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return 1
	end
	return 0
`)

// RedisStore implements domain.ClaimStore on Redis so several workers can
// share one claim set.
type RedisStore struct {
	client *redis.Client
	runID  string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed claim store scoped to runID.
func NewRedisStore(addr, password string, db int, runID string, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, runID: runID, ttl: ttl}, nil
}

// IsClaimed reports whether txnID has been claimed in this run.
func (s *RedisStore) IsClaimed(ctx context.Context, txnID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.makeKey(txnID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return n > 0, nil
}

// Claim atomically marks txnID as matched to alertID.
func (s *RedisStore) Claim(ctx context.Context, txnID string, alertID string) error {
	if txnID == "" || alertID == "" {
		return fmt.Errorf("%w: txnID and alertID are required", domain.ErrInvalidInput)
	}

	held, err := claimScript.Run(ctx, s.client, []string{s.makeKey(txnID)}, alertID, s.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to claim transaction: %w", err)
	}
	if held == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyClaimed, txnID)
	}
	return nil
}

// Release drops the claim on txnID.
func (s *RedisStore) Release(ctx context.Context, txnID string) error {
	return s.client.Del(ctx, s.makeKey(txnID)).Err()
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) makeKey(txnID string) string {
	return "heron:claim:" + s.runID + ":" + txnID
}
