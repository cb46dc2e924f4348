package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

const txnColumns = `id, source, amount, currency, timestamp_ns, reference,
	account_last4, account_number, bank_code, claimed_by, claimed_at_ns`

// SaveTransaction stores or replaces a transaction. Claim state is kept
// on replace and only changes through Claim and Release.
func (r *SQLRepository) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, source, amount, amount_value, currency, timestamp_ns,
			reference, account_last4, account_number, bank_code, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			amount = excluded.amount,
			amount_value = excluded.amount_value,
			currency = excluded.currency,
			timestamp_ns = excluded.timestamp_ns,
			reference = excluded.reference,
			account_last4 = excluded.account_last4,
			account_number = excluded.account_number,
			bank_code = excluded.bank_code
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		txn.ID, txn.Source, txn.Amount.String(), txn.Amount.InexactFloat64(),
		txn.Currency, txn.Timestamp.UnixNano(), txn.Reference.Raw,
		txn.AccountLast4, txn.AccountNumber, txn.BankCode,
		time.Now().UTC(),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE id = ?`

	txn, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txnID)
	}
	return txn, err
}

// FindByCompositeKey implements domain.TransactionPool.
func (r *SQLRepository) FindByCompositeKey(ctx context.Context, q domain.CompositeQuery) ([]*domain.Transaction, error) {
	return r.findTransactions(ctx, q.MinAmount, q.MaxAmount, q.Currency,
		`timestamp_ns >= ? AND timestamp_ns < ?`,
		q.BucketStart.UnixNano(), q.BucketEnd.UnixNano(),
	)
}

// FindInRange implements domain.TransactionPool.
func (r *SQLRepository) FindInRange(ctx context.Context, q domain.RangeQuery) ([]*domain.Transaction, error) {
	return r.findTransactions(ctx, q.MinAmount, q.MaxAmount, q.Currency,
		`timestamp_ns >= ? AND timestamp_ns <= ?`,
		q.From.UnixNano(), q.To.UnixNano(),
	)
}

// findTransactions narrows by the double amount column and re-checks the
// exact decimal bounds on the rows returned.
func (r *SQLRepository) findTransactions(ctx context.Context, lo, hi decimal.Decimal, currency, timeClause string, from, to int64) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txnColumns + `
		FROM transactions
		WHERE amount_value >= ? AND amount_value <= ? AND ` + timeClause
	args := []any{lo.InexactFloat64(), hi.InexactFloat64(), from, to}

	if currency != "" {
		query += ` AND currency = ?`
		args = append(args, currency)
	}
	query += ` ORDER BY timestamp_ns, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if txn.Amount.LessThan(lo) || txn.Amount.GreaterThan(hi) {
			continue
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

// IsClaimed implements domain.ClaimChecker. Unknown ids are not claimed.
func (r *SQLRepository) IsClaimed(ctx context.Context, txnID string) (bool, error) {
	query := `SELECT claimed_by FROM transactions WHERE id = ?`

	var holder sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(query), txnID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder.Valid, nil
}

// Claim implements domain.ClaimStore with a single conditional UPDATE, so
// concurrent callers across processes cannot both win. Claiming again for
// the same alert succeeds.
func (r *SQLRepository) Claim(ctx context.Context, txnID string, alertID string) error {
	if txnID == "" || alertID == "" {
		return fmt.Errorf("%w: transaction id and alert id are required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE transactions
		SET claimed_by = ?, claimed_at_ns = ?
		WHERE id = ? AND claimed_by IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), alertID, time.Now().UTC().UnixNano(), txnID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	var holder sql.NullString
	err = r.db.QueryRowContext(ctx, r.rebind(`SELECT claimed_by FROM transactions WHERE id = ?`), txnID).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txnID)
	}
	if err != nil {
		return err
	}
	if holder.String == alertID {
		return nil
	}
	return fmt.Errorf("%w: transaction %s is held by alert %s", domain.ErrAlreadyClaimed, txnID, holder.String)
}

// Release implements domain.ClaimStore.
func (r *SQLRepository) Release(ctx context.Context, txnID string) error {
	query := `
		UPDATE transactions
		SET claimed_by = NULL, claimed_at_ns = NULL
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), txnID)
	return err
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		id, source, amount, currency, reference string
		last4, account, bank                    string
		tsNanos                                 int64
		claimedBy                               sql.NullString
		claimedAt                               sql.NullInt64
	)

	if err := s.Scan(
		&id, &source, &amount, &currency, &tsNanos, &reference,
		&last4, &account, &bank, &claimedBy, &claimedAt,
	); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount for transaction %s: %w", id, err)
	}

	txn := domain.NewTransaction(id, value, currency, time.Unix(0, tsNanos), reference)
	txn.Source = source
	txn.AccountLast4 = last4
	txn.AccountNumber = account
	txn.BankCode = bank

	if claimedBy.Valid {
		txn.Claimed = true
		txn.ClaimedBy = claimedBy.String
		if claimedAt.Valid {
			at := time.Unix(0, claimedAt.Int64).UTC()
			txn.ClaimedAt = &at
		}
	}

	return txn, nil
}
