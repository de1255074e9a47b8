// Package queue implements the Queue Store (spec §4.7): the durable
// email_queue/email_logs/email_dead_letter_queue tables, atomic batch
// claiming, retry scheduling with jittered exponential backoff, and DLQ
// migration. Raw database/sql + lib/pq throughout, following the
// teacher's internal/repositories/email_event_repository.go scanning
// idiom (sql.NullString/sql.NullTime).
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

const (
	// RetryBase and RetryMax parameterize backoff(k) = min(base*2^k + jitter, max).
	RetryBase = 60 * time.Second
	RetryMax  = time.Hour

	// ClaimTTL is how long a claimed row stays in_flight before ReapStuck
	// demotes it back to failed_retry.
	ClaimTTL = 2 * time.Minute
)

// Store is the Queue Store component (C7).
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	logger *logrus.Logger
	rand   *rand.Rand
}

func New(db *sql.DB, clk clock.Clock, logger *logrus.Logger) *Store {
	return &Store{db: db, clock: clk, logger: logger, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// EnqueueRequest is the input to Enqueue, mirroring spec §4.11's shape.
type EnqueueRequest struct {
	RecipientEmail string
	EmailType      domain.EmailType
	Content        domain.EmailContent
	DedupKey       *string
	ScheduledAt    *time.Time
	CallerSubject  *string
	MaxAttempts    int
}

// Enqueue inserts a new queued row, or returns the id of a non-terminal
// row that already exists with the same dedup_key (spec §4.7, §8
// idempotence property).
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.DedupKey != nil && *req.DedupKey != "" {
		var existingID string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM email_queue
			WHERE dedup_key = $1 AND status NOT IN ('completed', 'dead')
			ORDER BY created_at DESC LIMIT 1
		`, *req.DedupKey).Scan(&existingID)
		if err == nil {
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("queue: dedup lookup: %w", err)
		}
	}

	id := uuid.New().String()
	now := s.clock.Now()
	nextRetry := now
	if req.ScheduledAt != nil {
		nextRetry = *req.ScheduledAt
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_queue
			(id, recipient_email, email_type, subject, html, text, from_email, from_name, reply_to,
			 attempts, max_attempts, status, next_retry_at, dedup_key, caller_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, 'queued', $11, $12, $13, $14, $14)
	`, id, req.RecipientEmail, req.EmailType, req.Content.Subject, req.Content.HTML, req.Content.Text,
		req.Content.From, req.Content.FromName, req.Content.ReplyTo, maxAttempts, nextRetry,
		req.DedupKey, req.CallerSubject, now)
	if err != nil {
		return "", fmt.Errorf("queue: insert: %w", err)
	}

	return id, nil
}

// ClaimReady atomically selects up to n rows ready for processing,
// ordered by (next_retry_at ASC, created_at ASC), flips them to
// in_flight and stamps a claim token/deadline so concurrent workers see
// disjoint batches (spec §4.7).
func (s *Store) ClaimReady(ctx context.Context, n int) ([]*domain.QueuedEmail, error) {
	now := s.clock.Now()
	deadline := now.Add(ClaimTTL)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE email_queue
		SET status = 'in_flight', claim_token = $1, claim_deadline = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE status IN ('queued', 'failed_retry') AND next_retry_at <= $3
			ORDER BY next_retry_at ASC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, recipient_email, email_type, subject, html, text, from_email, from_name,
		          reply_to, attempts, max_attempts, status, next_retry_at, last_error, dedup_key,
		          caller_subject, claim_token, claim_deadline, created_at, updated_at
	`, uuid.New().String(), deadline, now, n)
	if err != nil {
		return nil, fmt.Errorf("queue: claim ready: %w", err)
	}
	defer rows.Close()

	var out []*domain.QueuedEmail
	for rows.Next() {
		email, err := scanQueuedEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueuedEmail(r rowScanner) (*domain.QueuedEmail, error) {
	var e domain.QueuedEmail
	var lastError, dedupKey, callerSubject, claimToken sql.NullString
	var claimDeadline sql.NullTime
	var from, fromName, replyTo, text sql.NullString

	err := r.Scan(&e.ID, &e.RecipientEmail, &e.EmailType, &e.Content.Subject, &e.Content.HTML, &text,
		&from, &fromName, &replyTo, &e.Attempts, &e.MaxAttempts, &e.Status, &e.NextRetryAt,
		&lastError, &dedupKey, &callerSubject, &claimToken, &claimDeadline, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: scan: %w", err)
	}

	e.Content.Text = text.String
	e.Content.From = from.String
	e.Content.FromName = fromName.String
	e.Content.ReplyTo = replyTo.String
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if dedupKey.Valid {
		e.DedupKey = &dedupKey.String
	}
	if callerSubject.Valid {
		e.CallerSubject = &callerSubject.String
	}
	if claimToken.Valid {
		e.ClaimToken = &claimToken.String
	}
	if claimDeadline.Valid {
		e.ClaimDeadline = &claimDeadline.Time
	}
	return &e, nil
}

// MarkCompleted flips a row to completed and appends an EmailLog entry.
func (s *Store) MarkCompleted(ctx context.Context, id string, provider domain.Provider, messageID string, latencyMS int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.clock.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE email_queue SET status = 'completed', updated_at = $1 WHERE id = $2
	`, now, id); err != nil {
		return fmt.Errorf("queue: mark completed: %w", err)
	}

	if err := insertLog(ctx, tx, s.clock, id, provider, messageID, "sent", latencyMS, ""); err != nil {
		return err
	}

	return tx.Commit()
}

func insertLog(ctx context.Context, tx *sql.Tx, clk clock.Clock, queueID string, provider domain.Provider, messageID, status string, latencyMS int64, errMsg string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO email_logs (attempt_id, queue_id, provider, provider_message_id, status, latency_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New().String(), queueID, provider, messageID, status, latencyMS, errMsg, clk.Now())
	if err != nil {
		return fmt.Errorf("queue: insert log: %w", err)
	}
	return nil
}

// RecordFailedAttempt appends a failed EmailLog row without changing
// queue status, used by the worker before it decides between
// ScheduleRetry and MoveToDLQ.
func (s *Store) RecordFailedAttempt(ctx context.Context, queueID string, provider domain.Provider, latencyMS int64, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertLog(ctx, tx, s.clock, queueID, provider, "", "failed", latencyMS, errMsg); err != nil {
		return err
	}
	return tx.Commit()
}

// Backoff computes next_retry_at - now for attempt k:
// min(base*2^k + jitter, max), jitter in [0, base).
func Backoff(attempts int, r *rand.Rand) time.Duration {
	base := RetryBase
	shifted := base << uint(attempts)
	if shifted <= 0 || shifted > RetryMax { // overflow or already capped
		shifted = RetryMax
	}
	jitter := time.Duration(r.Int63n(int64(base)))
	d := shifted + jitter
	if d > RetryMax {
		d = RetryMax
	}
	return d
}

// ScheduleRetry increments attempts and computes the next retry time; if
// attempts reach max_attempts it moves the row to the DLQ instead
// (spec §4.7). Returns the resulting status so callers can distinguish
// a scheduled retry from a DLQ move without a second query.
func (s *Store) ScheduleRetry(ctx context.Context, id string, errMsg string) (domain.QueueStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `
		SELECT attempts, max_attempts FROM email_queue WHERE id = $1 FOR UPDATE
	`, id).Scan(&attempts, &maxAttempts)
	if err != nil {
		return "", fmt.Errorf("queue: schedule retry lookup: %w", err)
	}

	attempts++
	now := s.clock.Now()

	if attempts >= maxAttempts {
		if err := s.moveToDLQLocked(ctx, tx, id, errMsg, attempts, now); err != nil {
			return "", err
		}
		return domain.StatusDead, tx.Commit()
	}

	nextRetry := now.Add(Backoff(attempts, s.rand))
	_, err = tx.ExecContext(ctx, `
		UPDATE email_queue
		SET attempts = $1, status = 'failed_retry', next_retry_at = $2, last_error = $3,
		    updated_at = $4, claim_token = NULL, claim_deadline = NULL
		WHERE id = $5
	`, attempts, nextRetry, domain.Truncate(errMsg, 500), now, id)
	if err != nil {
		return "", fmt.Errorf("queue: schedule retry update: %w", err)
	}

	return domain.StatusFailedRetry, tx.Commit()
}

// MoveToDLQ copies the row into the dead-letter table and marks it dead.
func (s *Store) MoveToDLQ(ctx context.Context, id string, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRowContext(ctx, `SELECT attempts FROM email_queue WHERE id = $1 FOR UPDATE`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("queue: move to dlq lookup: %w", err)
	}

	if err := s.moveToDLQLocked(ctx, tx, id, reason, attempts, s.clock.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) moveToDLQLocked(ctx context.Context, tx *sql.Tx, id, reason string, attempts int, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO email_dead_letter_queue
			(id, queue_id, recipient_email, email_type, subject, html, text, attempts, final_error, failed_at)
		SELECT $1, id, recipient_email, email_type, subject, html, text, $2, $3, $4
		FROM email_queue WHERE id = $5
	`, uuid.New().String(), attempts, domain.Truncate(reason, 500), now, id)
	if err != nil {
		return fmt.Errorf("queue: dlq insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE email_queue
		SET status = 'dead', attempts = $1, last_error = $2, updated_at = $3,
		    claim_token = NULL, claim_deadline = NULL
		WHERE id = $4
	`, attempts, domain.Truncate(reason, 500), now, id)
	if err != nil {
		return fmt.Errorf("queue: dlq status update: %w", err)
	}
	return nil
}

// ReapStuck demotes any in_flight row whose claim deadline has expired
// back to failed_retry so another worker can pick it up (spec §4.7).
func (s *Store) ReapStuck(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = 'failed_retry', claim_token = NULL, claim_deadline = NULL, updated_at = $1
		WHERE status = 'in_flight' AND claim_deadline IS NOT NULL AND claim_deadline < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("queue: reap stuck: %w", err)
	}
	return res.RowsAffected()
}
