package repository

// Schema definitions for the Heron database.
// Compatible with both SQLite and PostgreSQL. Amounts are stored as exact
// decimal text plus a double for range filtering; timestamps used in
// lookups are unix nanoseconds so both drivers compare them the same way.

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    amount TEXT NOT NULL,
    amount_value DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    timestamp_ns BIGINT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    account_last4 TEXT NOT NULL DEFAULT '',
    account_number TEXT NOT NULL DEFAULT '',
    bank_code TEXT NOT NULL DEFAULT '',
    enrichment_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp_ns);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL,
    amount_value DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    timestamp_ns BIGINT NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    account_last4 TEXT NOT NULL DEFAULT '',
    account_number TEXT NOT NULL DEFAULT '',
    bank_code TEXT NOT NULL DEFAULT '',
    claimed_by TEXT,
    claimed_at_ns BIGINT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_lookup ON transactions(currency, amount_value, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_transactions_claimed ON transactions(claimed_by);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL DEFAULT '',
    alert_id TEXT NOT NULL,
    txn_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    decision TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_batch ON decisions(batch_id);
CREATE INDEX IF NOT EXISTS idx_decisions_alert ON decisions(alert_id, status);
`

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    stats TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAlerts,
		schemaTransactions,
		schemaDecisions,
		schemaBatches,
	}
}
