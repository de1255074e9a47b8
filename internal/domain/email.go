// Package domain holds the data model for the email delivery engine:
// queued sends, per-attempt logs, provider quota/health accounting,
// suppression entries and dead-letter records.
package domain

import "time"

// Provider identifies one of the three upstream transactional email APIs.
type Provider string

const (
	ProviderResend Provider = "resend"
	ProviderBrevo  Provider = "brevo"
	ProviderSES    Provider = "ses"
)

// AllProviders lists every provider the engine knows how to speak to.
var AllProviders = []Provider{ProviderResend, ProviderBrevo, ProviderSES}

// EmailType is the caller-supplied classification used for routing priority.
type EmailType string

const (
	EmailTypeAuth           EmailType = "auth"
	EmailTypeChat           EmailType = "chat"
	EmailTypeFoodListing    EmailType = "food_listing"
	EmailTypeFeedback       EmailType = "feedback"
	EmailTypeReviewReminder EmailType = "review_reminder"
	EmailTypeNewsletter     EmailType = "newsletter"
	EmailTypeAnnouncement   EmailType = "announcement"
)

// QueueStatus is the lifecycle state of a QueuedEmail.
type QueueStatus string

const (
	StatusQueued     QueueStatus = "queued"
	StatusInFlight   QueueStatus = "in_flight"
	StatusCompleted  QueueStatus = "completed"
	StatusFailedRetry QueueStatus = "failed_retry"
	StatusDead       QueueStatus = "dead"
)

// DefaultMaxAttempts is used when a caller does not override it.
const DefaultMaxAttempts = 5

// EmailContent is the caller-supplied message body. Rendering HTML/text
// templates is the caller's responsibility; this engine never templates.
type EmailContent struct {
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text,omitempty"`
	From     string `json:"from,omitempty"`
	FromName string `json:"from_name,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// QueuedEmail is the durable record of one send request.
type QueuedEmail struct {
	ID             string      `json:"id" db:"id"`
	RecipientEmail string      `json:"recipient_email" db:"recipient_email"`
	EmailType      EmailType   `json:"email_type" db:"email_type"`
	Content        EmailContent `json:"template_data" db:"-"`
	Attempts       int         `json:"attempts" db:"attempts"`
	MaxAttempts    int         `json:"max_attempts" db:"max_attempts"`
	Status         QueueStatus `json:"status" db:"status"`
	NextRetryAt    time.Time   `json:"next_retry_at" db:"next_retry_at"`
	LastError      *string     `json:"last_error,omitempty" db:"last_error"`
	DedupKey       *string     `json:"dedup_key,omitempty" db:"dedup_key"`
	CallerSubject  *string     `json:"caller_subject,omitempty" db:"caller_subject"`
	ClaimToken     *string     `json:"-" db:"claim_token"`
	ClaimDeadline  *time.Time  `json:"-" db:"claim_deadline"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// EmailLog is an append-only per-attempt audit record.
type EmailLog struct {
	AttemptID         string    `json:"attempt_id" db:"attempt_id"`
	QueueID           string    `json:"queue_id" db:"queue_id"`
	Provider          Provider  `json:"provider" db:"provider"`
	ProviderMessageID string    `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Status            string    `json:"status" db:"status"` // "sent" | "failed"
	LatencyMS         int64     `json:"latency_ms" db:"latency_ms"`
	Error             string    `json:"error,omitempty" db:"error"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// ProviderQuotaRow is one row per (provider, date_utc).
type ProviderQuotaRow struct {
	Provider    Provider  `json:"provider" db:"provider"`
	DateUTC     string    `json:"date_utc" db:"date_utc"` // YYYY-MM-DD
	EmailsSent  int       `json:"emails_sent" db:"emails_sent"`
	DailyLimit  int       `json:"daily_limit" db:"daily_limit"`
}

// CircuitState is the circuit-breaker state machine position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// ProviderHealthRow is one row per provider tracking rolling health.
type ProviderHealthRow struct {
	Provider                Provider     `json:"provider" db:"provider"`
	HealthScore             float64      `json:"health_score" db:"health_score"`
	TotalRequests           int64        `json:"total_requests" db:"total_requests"`
	SuccessfulRequests      int64        `json:"successful_requests" db:"successful_requests"`
	FailedRequests          int64        `json:"failed_requests" db:"failed_requests"`
	ConsecutiveFailures     int          `json:"consecutive_failures" db:"consecutive_failures"`
	AverageLatencyMS        float64      `json:"average_latency_ms" db:"average_latency_ms"`
	CircuitState            CircuitState `json:"circuit_state" db:"circuit_state"`
	LastFailureTime         *time.Time   `json:"last_failure_time,omitempty" db:"last_failure_time"`
	LastError               string       `json:"last_error,omitempty" db:"last_error"`
	MeasurementWindowStart  time.Time    `json:"measurement_window_start" db:"measurement_window_start"`
}

// ProviderHealthHistory is a periodic snapshot retained for 90 days.
type ProviderHealthHistory struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Provider       Provider  `json:"provider" gorm:"index"`
	SnapshotAt     time.Time `json:"snapshot_at" gorm:"index"`
	HealthScore    float64   `json:"health_score"`
	SuccessRate    float64   `json:"success_rate"`
	AvgLatencyMS   float64   `json:"avg_latency_ms"`
	TotalRequests  int64     `json:"total_requests"`
}

// TableName pins the gorm model to the contractual table name.
func (ProviderHealthHistory) TableName() string { return "email_provider_health_history" }

// SuppressionEntry marks a recipient that must never be contacted again.
type SuppressionEntry struct {
	Email     string    `json:"email" db:"email"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DeadLetterEntry is a frozen copy of a QueuedEmail at the moment it
// exceeded max_attempts.
type DeadLetterEntry struct {
	ID          string      `json:"id" db:"id"`
	QueueID     string      `json:"queue_id" db:"queue_id"`
	Recipient   string      `json:"recipient_email" db:"recipient_email"`
	EmailType   EmailType   `json:"email_type" db:"email_type"`
	Content     EmailContent `json:"template_data" db:"-"`
	Attempts    int         `json:"attempts" db:"attempts"`
	FinalError  string      `json:"final_error" db:"final_error"`
	FailedAt    time.Time   `json:"failed_at" db:"failed_at"`
}
