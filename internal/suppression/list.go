// Package suppression implements the Suppression List (spec §4.10):
// a durable set of recipients who must never be sent to again, fed by
// permanent provider failures and consulted by the Enqueue API. Raw
// database/sql + lib/pq, following the teacher's
// internal/repositories/email_event_repository.go idiom.
package suppression

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
)

// List is the Suppression List component (C10).
type List struct {
	db     *sql.DB
	clock  clock.Clock
	logger *logrus.Logger
}

func New(db *sql.DB, clk clock.Clock, logger *logrus.Logger) *List {
	return &List{db: db, clock: clk, logger: logger}
}

// IsSuppressed reports whether an address must not be sent to.
func (l *List) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM email_suppression WHERE email = $1)
	`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("suppression: is suppressed: %w", err)
	}
	return exists, nil
}

// Suppress adds (or refreshes the reason for) a suppressed address.
func (l *List) Suppress(ctx context.Context, email string, reason string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO email_suppression (email, reason, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET reason = $2
	`, email, domain.Truncate(reason, 500), l.clock.Now())
	if err != nil {
		return fmt.Errorf("suppression: suppress: %w", err)
	}
	l.logger.WithFields(logrus.Fields{"email": email, "reason": reason}).Info("suppression: recipient suppressed")
	return nil
}

// Unsuppress removes an address from the suppression list, e.g. after a
// manual review determines the original permanent failure no longer
// applies.
func (l *List) Unsuppress(ctx context.Context, email string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM email_suppression WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("suppression: unsuppress: %w", err)
	}
	l.logger.WithField("email", email).Info("suppression: recipient unsuppressed")
	return nil
}

// List returns every suppressed entry, for an administrative view.
func (l *List) List(ctx context.Context) ([]domain.SuppressionEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT email, reason, created_at FROM email_suppression ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("suppression: list: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.Email, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("suppression: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
