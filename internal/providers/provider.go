// Package providers implements the uniform adapter interface over Resend,
// Brevo and AWS SES, following the teacher's internal/services/ses.go
// request-building idiom but speaking each provider's own wire protocol
// directly over net/http instead of through a provider SDK.
package providers

import (
	"context"
	"time"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

// SendTimeout bounds every upstream Send/Ping/GetQuotaLive call.
const SendTimeout = 30 * time.Second

// SendResult is the outcome of one Adapter.Send call.
type SendResult struct {
	Success          bool
	MessageID        string
	Err              error
	LatencyMS        int64
	PermanentFailure bool
}

// Quota is the live upstream quota snapshot returned by GetQuotaLive.
type Quota struct {
	DailySent        int
	DailyLimit       int
	MonthlyRemaining *int // display-only, per spec §9 Open Questions
	Err              error
}

// PingStatus is the health classification returned by Ping.
type PingStatus string

const (
	PingOK           PingStatus = "ok"
	PingError        PingStatus = "error"
	PingUnconfigured PingStatus = "unconfigured"
)

// PingResult is the outcome of one Adapter.Ping call.
type PingResult struct {
	Status    PingStatus
	LatencyMS int64
	Message   string
}

// Adapter is the uniform capability set every provider implements.
// Adapters are stateless beyond cached credentials: they never persist
// ledger or health state themselves (spec §4.1).
type Adapter interface {
	Provider() domain.Provider
	Send(ctx context.Context, email *domain.QueuedEmail) SendResult
	GetQuotaLive(ctx context.Context) Quota
	Ping(ctx context.Context, detailed bool) PingResult
}
