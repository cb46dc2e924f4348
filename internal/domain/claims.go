package domain

import (
	"context"
	"time"
)

// ClaimChecker answers whether a transaction is already matched.
type ClaimChecker interface {
	IsClaimed(ctx context.Context, txnID string) (bool, error)
}

// ClaimStore records committed matches. Claim must be an atomic
// check-and-set: a second claim on the same transaction returns
// ErrAlreadyClaimed.
type ClaimStore interface {
	ClaimChecker

	Claim(ctx context.Context, txnID string, alertID string) error

	// Release drops a claim so the transaction can be offered again.
	Release(ctx context.Context, txnID string) error
}

// ClaimStoreConfig holds configuration for claim store initialization.
type ClaimStoreConfig struct {
	// Type is the store type: "memory", "redis" or "repository"
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	// RunID scopes claims; empty means a fresh id per process.
	RunID string `json:"runId" yaml:"run_id" mapstructure:"run_id"`

	// Redis settings
	RedisAddr     string        `json:"redisAddr" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `json:"redisPassword" yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `json:"redisDb" yaml:"redis_db" mapstructure:"redis_db"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}
