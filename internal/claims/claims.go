// Package claims provides stores that record which transactions have been
// matched, with an atomic claim operation.
package claims

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/opensource-finance/heron/internal/domain"
)

// New creates a claim store based on configuration.
// "memory" returns a process-local store; "redis" returns a store shared
// by every worker using the same run id. The "repository" type is built by
// the caller from its repository, which implements domain.ClaimStore.
func New(cfg domain.ClaimStoreConfig) (domain.ClaimStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "redis":
		runID := cfg.RunID
		if runID == "" {
			runID = uuid.New().String()
		}
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, runID, cfg.TTL)

	default:
		return nil, fmt.Errorf("unsupported claim store type: %s", cfg.Type)
	}
}
