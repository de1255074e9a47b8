package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/vault"
)

const (
	resendSendURL    = "https://api.resend.com/emails"
	resendPingURL    = "https://api.resend.com/domains"
)

// ResendAdapter speaks Resend's JSON API, per spec §6.
type ResendAdapter struct {
	vault      *vault.Vault
	httpClient *http.Client
	logger     *logrus.Logger
	fromEmail  string
	fromName   string
}

// NewResendAdapter constructs a Resend adapter. fromEmail/fromName are the
// EMAIL_FROM/EMAIL_FROM_NAME defaults used when a send request omits them.
func NewResendAdapter(v *vault.Vault, fromEmail, fromName string, logger *logrus.Logger) *ResendAdapter {
	return &ResendAdapter{
		vault:      v,
		httpClient: &http.Client{Timeout: SendTimeout},
		logger:     logger,
		fromEmail:  fromEmail,
		fromName:   fromName,
	}
}

func (a *ResendAdapter) Provider() domain.Provider { return domain.ProviderResend }

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendSendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (a *ResendAdapter) Send(ctx context.Context, email *domain.QueuedEmail) SendResult {
	start := time.Now()

	creds, err := a.vault.GetCredentials(ctx, domain.ProviderResend)
	if err != nil {
		return SendResult{Err: domain.NewTransientError("resend unconfigured: " + err.Error()), LatencyMS: sinceMS(start)}
	}

	from := email.Content.From
	if from == "" {
		from = a.fromEmail
	}
	if email.Content.FromName != "" {
		from = fmt.Sprintf("%s <%s>", email.Content.FromName, from)
	} else if a.fromName != "" {
		from = fmt.Sprintf("%s <%s>", a.fromName, from)
	}

	body, _ := json.Marshal(resendSendRequest{
		From:    from,
		To:      []string{email.RecipientEmail},
		Subject: email.Content.Subject,
		HTML:    email.Content.HTML,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendSendURL, bytes.NewReader(body))
	if err != nil {
		return SendResult{Err: domain.NewTransientError(err.Error()), LatencyMS: sinceMS(start)}
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	latency := sinceMS(start)
	if err != nil {
		return SendResult{Err: domain.NewTransientError(err.Error()), LatencyMS: latency}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusOK {
		var parsed resendSendResponse
		_ = json.Unmarshal(raw, &parsed)
		a.logger.WithFields(logrus.Fields{"provider": "resend", "message_id": parsed.ID}).Debug("email sent")
		return SendResult{Success: true, MessageID: parsed.ID, LatencyMS: latency}
	}

	if isPermanentResendFailure(resp.StatusCode, raw) {
		return SendResult{Err: domain.NewPermanentError(fmt.Sprintf("resend %d: %s", resp.StatusCode, string(raw))), LatencyMS: latency, PermanentFailure: true}
	}
	return SendResult{Err: domain.NewTransientError(fmt.Sprintf("resend %d: %s", resp.StatusCode, string(raw))), LatencyMS: latency}
}

// isPermanentResendFailure classifies 400/422 invalid-recipient/validation
// errors as permanent; 429/5xx remain transient per spec §4.1.
func isPermanentResendFailure(status int, body []byte) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return false
	}
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

func (a *ResendAdapter) GetQuotaLive(ctx context.Context) Quota {
	// Resend does not expose a daily-quota endpoint; quota is inferred
	// entirely from the local ledger, per spec §4.1 ("Resend inferred").
	return Quota{}
}

func (a *ResendAdapter) Ping(ctx context.Context, detailed bool) PingResult {
	start := time.Now()
	creds, err := a.vault.GetCredentials(ctx, domain.ProviderResend)
	if err != nil {
		return PingResult{Status: PingUnconfigured, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resendPingURL, nil)
	if err != nil {
		return PingResult{Status: PingError, Message: err.Error(), LatencyMS: sinceMS(start)}
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := a.httpClient.Do(req)
	latency := sinceMS(start)
	if err != nil {
		return PingResult{Status: PingError, Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PingResult{Status: PingError, Message: fmt.Sprintf("HTTP %d", resp.StatusCode), LatencyMS: latency}
	}
	return PingResult{Status: PingOK, LatencyMS: latency, Message: "ok"}
}

func sinceMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
