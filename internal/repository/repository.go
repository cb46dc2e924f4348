// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", domain.ErrConfiguration, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const alertColumns = `id, amount, currency, timestamp_ns, reference,
	account_last4, account_number, bank_code, enrichment_confidence`

// SaveAlert stores or replaces an alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, amount, amount_value, currency, timestamp_ns, reference,
			account_last4, account_number, bank_code, enrichment_confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			amount_value = excluded.amount_value,
			currency = excluded.currency,
			timestamp_ns = excluded.timestamp_ns,
			reference = excluded.reference,
			account_last4 = excluded.account_last4,
			account_number = excluded.account_number,
			bank_code = excluded.bank_code,
			enrichment_confidence = excluded.enrichment_confidence
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.Amount.String(), alert.Amount.InexactFloat64(),
		alert.Currency, alert.Timestamp.UnixNano(), alert.Reference.Raw,
		alert.AccountLast4, alert.AccountNumber, alert.BankCode, alert.EnrichmentConfidence,
		time.Now().UTC(),
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	return alert, err
}

// ListUnmatchedAlerts returns alerts without an auto-matched decision,
// oldest first. A limit of zero or less returns all of them.
func (r *SQLRepository) ListUnmatchedAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		WHERE NOT EXISTS (
			SELECT 1 FROM decisions d
			WHERE d.alert_id = a.id AND d.status = ?
		)
		ORDER BY timestamp_ns, id
	`
	args := []any{string(domain.StatusAutoMatched)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// SaveDecision stores a decision record.
func (r *SQLRepository) SaveDecision(ctx context.Context, rec *domain.DecisionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: decision id is required", domain.ErrInvalidInput)
	}
	if rec.Decision == nil {
		return fmt.Errorf("%w: decision %s has no body", domain.ErrInvalidInput, rec.ID)
	}

	body, err := json.Marshal(rec.Decision)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (
			id, batch_id, alert_id, txn_id, status, confidence, decision, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.BatchID, rec.AlertID, rec.TransactionID,
		string(rec.Status), rec.Confidence, string(body), createdAt,
	)
	return err
}

const decisionColumns = `id, batch_id, alert_id, txn_id, status, confidence, decision, created_at`

// GetDecision retrieves a decision record by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, decisionID string) (*domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = ?`

	rec, err := scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), decisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: decision %s", domain.ErrNotFound, decisionID)
	}
	return rec, err
}

// ListDecisionsByBatch returns the decisions of a batch in the order they
// were saved.
func (r *SQLRepository) ListDecisionsByBatch(ctx context.Context, batchID string) ([]*domain.DecisionRecord, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + decisionColumns + `
		FROM decisions
		WHERE batch_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveBatch stores or replaces a batch summary.
func (r *SQLRepository) SaveBatch(ctx context.Context, batch *domain.BatchRecord) error {
	if batch == nil || batch.ID == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrInvalidInput)
	}

	stats, err := json.Marshal(batch.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode batch stats: %w", err)
	}

	query := `
		INSERT INTO batches (id, mode, stats, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			stats = excluded.stats,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		batch.ID, batch.Mode, string(stats), batch.StartedAt.UTC(), batch.CompletedAt.UTC(),
	)
	return err
}

// GetBatch retrieves a batch summary by ID.
func (r *SQLRepository) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	query := `
		SELECT id, mode, stats, started_at, completed_at
		FROM batches
		WHERE id = ?
	`

	var batch domain.BatchRecord
	var stats string

	err := r.db.QueryRowContext(ctx, r.rebind(query), batchID).Scan(
		&batch.ID, &batch.Mode, &stats, &batch.StartedAt, &batch.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stats), &batch.Stats); err != nil {
		return nil, fmt.Errorf("failed to parse batch stats for %s: %w", batch.ID, err)
	}

	return &batch, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.Alert, error) {
	var (
		id, amount, currency, reference string
		last4, account, bank            string
		tsNanos                         int64
		confidence                      float64
	)

	if err := s.Scan(
		&id, &amount, &currency, &tsNanos, &reference,
		&last4, &account, &bank, &confidence,
	); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount for alert %s: %w", id, err)
	}

	alert := domain.NewAlert(id, value, currency, time.Unix(0, tsNanos), reference)
	alert.AccountLast4 = last4
	alert.AccountNumber = account
	alert.BankCode = bank
	alert.EnrichmentConfidence = confidence

	return alert, nil
}

func scanDecision(s scanner) (*domain.DecisionRecord, error) {
	var rec domain.DecisionRecord
	var status, body string

	if err := s.Scan(
		&rec.ID, &rec.BatchID, &rec.AlertID, &rec.TransactionID,
		&status, &rec.Confidence, &body, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = domain.MatchStatus(status)
	rec.Decision = &domain.MatchDecision{}
	if err := json.Unmarshal([]byte(body), rec.Decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision %s: %w", rec.ID, err)
	}

	return &rec, nil
}
