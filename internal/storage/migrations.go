package storage

// EmailEngineMigrationSQL returns the schema migration for every table
// the delivery engine's raw-SQL components read and write: the queue
// (email_queue/email_logs/email_dead_letter_queue), the quota ledger
// (email_provider_quota), the circuit breaker (email_provider_health_metrics)
// and the suppression list (email_suppression). The one gorm-backed
// table, email_provider_health_history, is created separately via
// AutoMigrate in internal/server.New.
func EmailEngineMigrationSQL() string {
	return `
-- Email delivery engine schema migration.

CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS email_queue (
    id              UUID PRIMARY KEY,
    recipient_email VARCHAR(320) NOT NULL,
    email_type      VARCHAR(50) NOT NULL,
    subject         TEXT NOT NULL,
    html            TEXT NOT NULL,
    text            TEXT,
    from_email      VARCHAR(320),
    from_name       VARCHAR(200),
    reply_to        VARCHAR(320),
    attempts        INTEGER NOT NULL DEFAULT 0,
    max_attempts    INTEGER NOT NULL DEFAULT 5,
    status          VARCHAR(20) NOT NULL DEFAULT 'queued',
    next_retry_at   TIMESTAMPTZ NOT NULL,
    last_error      TEXT,
    dedup_key       VARCHAR(300),
    caller_subject  VARCHAR(200),
    claim_token     UUID,
    claim_deadline  TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_queue_claim ON email_queue (status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_email_queue_dedup ON email_queue (dedup_key) WHERE dedup_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS email_logs (
    attempt_id          UUID PRIMARY KEY,
    queue_id            UUID NOT NULL REFERENCES email_queue (id) ON DELETE CASCADE,
    provider            VARCHAR(20) NOT NULL,
    provider_message_id VARCHAR(200),
    status              VARCHAR(20) NOT NULL,
    latency_ms          BIGINT NOT NULL DEFAULT 0,
    error               TEXT,
    created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_logs_queue_id ON email_logs (queue_id);

CREATE TABLE IF NOT EXISTS email_dead_letter_queue (
    id              UUID PRIMARY KEY,
    queue_id        UUID NOT NULL,
    recipient_email VARCHAR(320) NOT NULL,
    email_type      VARCHAR(50) NOT NULL,
    subject         TEXT NOT NULL,
    html            TEXT NOT NULL,
    text            TEXT,
    attempts        INTEGER NOT NULL,
    final_error     TEXT,
    failed_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS email_provider_quota (
    provider     VARCHAR(20) NOT NULL,
    date_utc     DATE NOT NULL,
    emails_sent  INTEGER NOT NULL DEFAULT 0,
    daily_limit  INTEGER NOT NULL,
    PRIMARY KEY (provider, date_utc)
);

CREATE TABLE IF NOT EXISTS email_provider_health_metrics (
    provider                  VARCHAR(20) PRIMARY KEY,
    health_score              DOUBLE PRECISION NOT NULL DEFAULT 100,
    total_requests            BIGINT NOT NULL DEFAULT 0,
    successful_requests       BIGINT NOT NULL DEFAULT 0,
    failed_requests           BIGINT NOT NULL DEFAULT 0,
    consecutive_failures      INTEGER NOT NULL DEFAULT 0,
    average_latency_ms        DOUBLE PRECISION NOT NULL DEFAULT 0,
    circuit_state             VARCHAR(20) NOT NULL DEFAULT 'closed',
    last_failure_time         TIMESTAMPTZ,
    last_error                TEXT,
    measurement_window_start  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS email_suppression (
    email      VARCHAR(320) PRIMARY KEY,
    reason     TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
`
}
