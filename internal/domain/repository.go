// Package domain defines the core types and interfaces for Heron.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	TransactionPool
	ClaimStore

	// Alert operations
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListUnmatchedAlerts(ctx context.Context, limit int) ([]*Alert, error)

	// Transaction operations
	SaveTransaction(ctx context.Context, txn *Transaction) error
	GetTransaction(ctx context.Context, txnID string) (*Transaction, error)

	// Decision results
	SaveDecision(ctx context.Context, rec *DecisionRecord) error
	GetDecision(ctx context.Context, decisionID string) (*DecisionRecord, error)
	ListDecisionsByBatch(ctx context.Context, batchID string) ([]*DecisionRecord, error)

	// Batch runs
	SaveBatch(ctx context.Context, batch *BatchRecord) error
	GetBatch(ctx context.Context, batchID string) (*BatchRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// BatchRecord is a persisted batch summary.
type BatchRecord struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	Stats       BatchStats `json:"stats"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user" mapstructure:"postgres_user"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgres_password" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode" mapstructure:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}
