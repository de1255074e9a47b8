// Package breaker implements the Circuit Breaker / Health Tracker (spec
// §4.5): rolling success/failure/latency counters, a 0-100 health score,
// and the closed/open/half_open state machine. Persisted in
// email_provider_health_metrics with row-level locking for the counter
// updates (SELECT ... FOR UPDATE), following the teacher's raw-SQL
// repository idiom; readers (the Router) take snapshot reads since stale
// reads self-correct on the next tick (spec §5).
package breaker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// ConsecutiveFailureThreshold opens the circuit (spec §4.5).
const ConsecutiveFailureThreshold = 5

// CooldownDuration is how long the circuit stays open before half-opening.
const CooldownDuration = 30 * time.Second

// ErrBreakerOpen is returned by WithBreaker when the circuit is open.
var ErrBreakerOpen = domain.ErrBreakerOpen

// Tracker is the Circuit Breaker / Health Tracker component (C5).
type Tracker struct {
	db     *sql.DB
	clock  clock.Clock
	logger *logrus.Logger
}

func New(db *sql.DB, clk clock.Clock, logger *logrus.Logger) *Tracker {
	return &Tracker{db: db, clock: clk, logger: logger}
}

// ensureRow lazily creates a provider's health row, closed, at zero.
func (t *Tracker) ensureRow(ctx context.Context, tx *sql.Tx, provider domain.Provider) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO email_provider_health_metrics
			(provider, health_score, total_requests, successful_requests, failed_requests,
			 consecutive_failures, average_latency_ms, circuit_state, measurement_window_start)
		VALUES ($1, 100, 0, 0, 0, 0, 0, 'closed', $2)
		ON CONFLICT (provider) DO NOTHING
	`, provider, t.clock.Now())
	return err
}

// Snapshot reads the current health row for a provider without locking.
func (t *Tracker) Snapshot(ctx context.Context, provider domain.Provider) (domain.ProviderHealthRow, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProviderHealthRow{}, err
	}
	defer tx.Rollback()

	if err := t.ensureRow(ctx, tx, provider); err != nil {
		return domain.ProviderHealthRow{}, err
	}
	row, err := t.scan(ctx, tx, provider)
	if err != nil {
		return domain.ProviderHealthRow{}, err
	}
	return row, tx.Commit()
}

func (t *Tracker) scan(ctx context.Context, tx *sql.Tx, provider domain.Provider) (domain.ProviderHealthRow, error) {
	var row domain.ProviderHealthRow
	var provStr, state string
	var lastFailure sql.NullTime
	var lastError sql.NullString

	err := tx.QueryRowContext(ctx, `
		SELECT provider, health_score, total_requests, successful_requests, failed_requests,
		       consecutive_failures, average_latency_ms, circuit_state, last_failure_time,
		       last_error, measurement_window_start
		FROM email_provider_health_metrics WHERE provider = $1
	`, provider).Scan(&provStr, &row.HealthScore, &row.TotalRequests, &row.SuccessfulRequests,
		&row.FailedRequests, &row.ConsecutiveFailures, &row.AverageLatencyMS, &state,
		&lastFailure, &lastError, &row.MeasurementWindowStart)
	if err != nil {
		return domain.ProviderHealthRow{}, fmt.Errorf("breaker: scan: %w", err)
	}

	row.Provider = domain.Provider(provStr)
	row.CircuitState = domain.CircuitState(state)
	if lastFailure.Valid {
		row.LastFailureTime = &lastFailure.Time
	}
	row.LastError = lastError.String
	return row, nil
}

// RecordOutcome atomically updates counters, the EMA latency and the
// circuit state machine, then recomputes the health score (spec §4.5).
func (t *Tracker) RecordOutcome(ctx context.Context, provider domain.Provider, success bool, latencyMS int64, errMsg string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := t.ensureRow(ctx, tx, provider); err != nil {
		return err
	}

	row, err := t.lockRow(ctx, tx, provider)
	if err != nil {
		return err
	}

	now := t.clock.Now()
	row.TotalRequests++
	if success {
		row.SuccessfulRequests++
		row.ConsecutiveFailures = 0
	} else {
		row.FailedRequests++
		row.ConsecutiveFailures++
		row.LastFailureTime = &now
		row.LastError = domain.Truncate(errMsg, 500)
	}

	if row.AverageLatencyMS == 0 {
		row.AverageLatencyMS = float64(latencyMS)
	} else {
		row.AverageLatencyMS = 0.8*row.AverageLatencyMS + 0.2*float64(latencyMS)
	}

	row.CircuitState = nextState(row.CircuitState, success, row.ConsecutiveFailures, row.LastFailureTime, now)
	row.HealthScore = healthScore(row)

	_, err = tx.ExecContext(ctx, `
		UPDATE email_provider_health_metrics
		SET health_score = $1, total_requests = $2, successful_requests = $3, failed_requests = $4,
		    consecutive_failures = $5, average_latency_ms = $6, circuit_state = $7,
		    last_failure_time = $8, last_error = $9
		WHERE provider = $10
	`, row.HealthScore, row.TotalRequests, row.SuccessfulRequests, row.FailedRequests,
		row.ConsecutiveFailures, row.AverageLatencyMS, row.CircuitState,
		row.LastFailureTime, row.LastError, provider)
	if err != nil {
		return fmt.Errorf("breaker: update: %w", err)
	}

	return tx.Commit()
}

func (t *Tracker) lockRow(ctx context.Context, tx *sql.Tx, provider domain.Provider) (domain.ProviderHealthRow, error) {
	var row domain.ProviderHealthRow
	var provStr, state string
	var lastFailure sql.NullTime
	var lastError sql.NullString

	err := tx.QueryRowContext(ctx, `
		SELECT provider, health_score, total_requests, successful_requests, failed_requests,
		       consecutive_failures, average_latency_ms, circuit_state, last_failure_time,
		       last_error, measurement_window_start
		FROM email_provider_health_metrics WHERE provider = $1 FOR UPDATE
	`, provider).Scan(&provStr, &row.HealthScore, &row.TotalRequests, &row.SuccessfulRequests,
		&row.FailedRequests, &row.ConsecutiveFailures, &row.AverageLatencyMS, &state,
		&lastFailure, &lastError, &row.MeasurementWindowStart)
	if err != nil {
		return domain.ProviderHealthRow{}, fmt.Errorf("breaker: lock: %w", err)
	}

	row.Provider = domain.Provider(provStr)
	row.CircuitState = domain.CircuitState(state)
	if lastFailure.Valid {
		row.LastFailureTime = &lastFailure.Time
	}
	row.LastError = lastError.String
	return row, nil
}

// nextState implements the closed/open/half_open transitions of spec §4.5.
func nextState(current domain.CircuitState, success bool, consecutiveFailures int, lastFailure *time.Time, now time.Time) domain.CircuitState {
	switch current {
	case domain.CircuitClosed:
		if consecutiveFailures >= ConsecutiveFailureThreshold {
			return domain.CircuitOpen
		}
		return domain.CircuitClosed

	case domain.CircuitOpen:
		if lastFailure != nil && now.Sub(*lastFailure) >= CooldownDuration {
			return domain.CircuitHalfOpen
		}
		return domain.CircuitOpen

	case domain.CircuitHalfOpen:
		if success {
			return domain.CircuitClosed
		}
		return domain.CircuitOpen

	default:
		return domain.CircuitClosed
	}
}

// healthScore implements the formula in spec §4.5:
//
//	score = 100 · success_rate · latency_factor · circuit_factor
func healthScore(row domain.ProviderHealthRow) float64 {
	successRate := 1.0
	if row.TotalRequests > 0 {
		successRate = float64(row.SuccessfulRequests) / float64(row.TotalRequests)
	}

	latencyFactor := latencyFactor(row.AverageLatencyMS)

	circuitFactor := 1.0
	switch row.CircuitState {
	case domain.CircuitHalfOpen:
		circuitFactor = 0.5
	case domain.CircuitOpen:
		circuitFactor = 0.1
	}

	score := 100 * successRate * latencyFactor * circuitFactor
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// latencyFactor is 1 at <=500ms, decays linearly to 0.5 at 3000ms,
// 0.2 at >=5000ms.
func latencyFactor(avgMS float64) float64 {
	switch {
	case avgMS <= 500:
		return 1.0
	case avgMS <= 3000:
		// linear interpolation between (500, 1.0) and (3000, 0.5)
		return 1.0 - 0.5*(avgMS-500)/(3000-500)
	case avgMS < 5000:
		// linear interpolation between (3000, 0.5) and (5000, 0.2)
		return 0.5 - 0.3*(avgMS-3000)/(5000-3000)
	default:
		return 0.2
	}
}

// WithBreaker runs op if the circuit is not open; otherwise returns
// ErrBreakerOpen without invoking op (spec §4.5).
func (t *Tracker) WithBreaker(ctx context.Context, provider domain.Provider, op func(ctx context.Context) error) error {
	row, err := t.Snapshot(ctx, provider)
	if err != nil {
		return err
	}
	if row.CircuitState == domain.CircuitOpen {
		return ErrBreakerOpen
	}
	return op(ctx)
}

// IsAvailable reports whether the circuit is not open for routing
// purposes: closed and half-open both admit traffic. Neither the tracker
// nor the worker limits a half-open circuit to a single probe; every send
// routed to a half-open provider goes through.
func IsAvailable(state domain.CircuitState) bool {
	return state != domain.CircuitOpen
}
