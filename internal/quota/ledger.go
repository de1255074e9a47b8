// Package quota implements the per-provider daily quota ledger (spec §4.3),
// persisted in email_provider_quota with an atomic conditional update so
// concurrent workers never oversell a provider's daily limit. Modeled on
// the teacher's raw database/sql + lib/pq idiom in
// internal/repositories/email_event_repository.go.
package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// DefaultLimits are the daily_limit seed values per spec §4.3. SES's limit
// is overridden by the live GetSendQuota call on the health monitor's
// next tick.
var DefaultLimits = map[domain.Provider]int{
	domain.ProviderResend: 100,
	domain.ProviderBrevo:  300,
	domain.ProviderSES:    100,
}

// Reservation is the outcome of a TryReserve call.
type Reservation struct {
	Allowed   bool
	Remaining int
}

// Ledger is the Quota Ledger component (C3).
type Ledger struct {
	db     *sql.DB
	clock  clock.Clock
	logger *logrus.Logger
}

func New(db *sql.DB, clk clock.Clock, logger *logrus.Logger) *Ledger {
	return &Ledger{db: db, clock: clk, logger: logger}
}

func (l *Ledger) today() string {
	return l.clock.Now().UTC().Format("2006-01-02")
}

// TryReserve atomically increments emails_sent iff emails_sent + n <=
// daily_limit, lazily creating today's row with the provider's default
// limit on first use. Daily rollover is automatic: a new date produces a
// new row.
func (l *Ledger) TryReserve(ctx context.Context, provider domain.Provider, n int) (Reservation, error) {
	date := l.today()
	defaultLimit := DefaultLimits[provider]

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO email_provider_quota (provider, date_utc, emails_sent, daily_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (provider, date_utc) DO NOTHING
	`, provider, date, defaultLimit)
	if err != nil {
		return Reservation{}, fmt.Errorf("quota: seed row: %w", err)
	}

	row := l.db.QueryRowContext(ctx, `
		UPDATE email_provider_quota
		SET emails_sent = emails_sent + $1
		WHERE provider = $2 AND date_utc = $3 AND emails_sent + $1 <= daily_limit
		RETURNING emails_sent, daily_limit
	`, n, provider, date)

	var sent, limit int
	if err := row.Scan(&sent, &limit); err != nil {
		if err == sql.ErrNoRows {
			// Conditional update matched nothing: quota exhausted. Fetch
			// the current remaining for the caller's Snapshot visibility.
			remaining, qerr := l.remaining(ctx, provider, date)
			if qerr != nil {
				return Reservation{}, qerr
			}
			return Reservation{Allowed: false, Remaining: remaining}, nil
		}
		return Reservation{}, fmt.Errorf("quota: reserve: %w", err)
	}

	return Reservation{Allowed: true, Remaining: limit - sent}, nil
}

func (l *Ledger) remaining(ctx context.Context, provider domain.Provider, date string) (int, error) {
	var sent, limit int
	err := l.db.QueryRowContext(ctx, `
		SELECT emails_sent, daily_limit FROM email_provider_quota
		WHERE provider = $1 AND date_utc = $2
	`, provider, date).Scan(&sent, &limit)
	if err != nil {
		return 0, fmt.Errorf("quota: remaining: %w", err)
	}
	r := limit - sent
	if r < 0 {
		r = 0
	}
	return r, nil
}

// Refund decrements emails_sent by n. Used only when a reservation was
// made but the upstream call was never attempted (spec §4.3) — never for
// a TransientProviderError, per the Open Questions resolution in
// SPEC_FULL.md §9 (no refund, conservative against double-billing).
func (l *Ledger) Refund(ctx context.Context, provider domain.Provider, n int) error {
	date := l.today()
	_, err := l.db.ExecContext(ctx, `
		UPDATE email_provider_quota
		SET emails_sent = GREATEST(emails_sent - $1, 0)
		WHERE provider = $2 AND date_utc = $3
	`, n, provider, date)
	if err != nil {
		return fmt.Errorf("quota: refund: %w", err)
	}
	return nil
}

// QuotaSnapshot is one row of Snapshot()'s result.
type QuotaSnapshot struct {
	Provider domain.Provider
	Date     string
	Sent     int
	Limit    int
	Remaining int
	PctUsed  float64
}

// Snapshot returns today's quota usage for every provider.
func (l *Ledger) Snapshot(ctx context.Context) ([]QuotaSnapshot, error) {
	date := l.today()
	rows, err := l.db.QueryContext(ctx, `
		SELECT provider, date_utc, emails_sent, daily_limit
		FROM email_provider_quota WHERE date_utc = $1
	`, date)
	if err != nil {
		return nil, fmt.Errorf("quota: snapshot: %w", err)
	}
	defer rows.Close()

	var out []QuotaSnapshot
	for rows.Next() {
		var s QuotaSnapshot
		var provider string
		if err := rows.Scan(&provider, &s.Date, &s.Sent, &s.Limit); err != nil {
			return nil, fmt.Errorf("quota: scan: %w", err)
		}
		s.Provider = domain.Provider(provider)
		s.Remaining = s.Limit - s.Sent
		if s.Limit > 0 {
			s.PctUsed = float64(s.Sent) / float64(s.Limit) * 100
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateDailyLimit overrides today's daily_limit, used by the health
// monitor when SES's live GetSendQuota differs from the default.
func (l *Ledger) UpdateDailyLimit(ctx context.Context, provider domain.Provider, limit int) error {
	date := l.today()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO email_provider_quota (provider, date_utc, emails_sent, daily_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (provider, date_utc) DO UPDATE SET daily_limit = $3
	`, provider, date, limit)
	if err != nil {
		return fmt.Errorf("quota: update limit: %w", err)
	}
	return nil
}
