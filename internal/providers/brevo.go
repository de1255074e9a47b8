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
	brevoSendURL    = "https://api.brevo.com/v3/smtp/email"
	brevoAccountURL = "https://api.brevo.com/v3/account"
)

// BrevoAdapter speaks Brevo's JSON SMTP API, per spec §6.
type BrevoAdapter struct {
	vault      *vault.Vault
	httpClient *http.Client
	logger     *logrus.Logger
	fromEmail  string
	fromName   string
}

func NewBrevoAdapter(v *vault.Vault, fromEmail, fromName string, logger *logrus.Logger) *BrevoAdapter {
	return &BrevoAdapter{
		vault:      v,
		httpClient: &http.Client{Timeout: SendTimeout},
		logger:     logger,
		fromEmail:  fromEmail,
		fromName:   fromName,
	}
}

func (a *BrevoAdapter) Provider() domain.Provider { return domain.ProviderBrevo }

type brevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRecipient struct {
	Email string `json:"email"`
}

type brevoSendRequest struct {
	Sender      brevoSender      `json:"sender"`
	To          []brevoRecipient `json:"to"`
	Subject     string           `json:"subject"`
	HTMLContent string           `json:"htmlContent"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

func (a *BrevoAdapter) Send(ctx context.Context, email *domain.QueuedEmail) SendResult {
	start := time.Now()

	creds, err := a.vault.GetCredentials(ctx, domain.ProviderBrevo)
	if err != nil {
		return SendResult{Err: domain.NewTransientError("brevo unconfigured: " + err.Error()), LatencyMS: sinceMS(start)}
	}

	fromEmail := email.Content.From
	if fromEmail == "" {
		fromEmail = a.fromEmail
	}
	fromName := email.Content.FromName
	if fromName == "" {
		fromName = a.fromName
	}

	body, _ := json.Marshal(brevoSendRequest{
		Sender:      brevoSender{Email: fromEmail, Name: fromName},
		To:          []brevoRecipient{{Email: email.RecipientEmail}},
		Subject:     email.Content.Subject,
		HTMLContent: email.Content.HTML,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoSendURL, bytes.NewReader(body))
	if err != nil {
		return SendResult{Err: domain.NewTransientError(err.Error()), LatencyMS: sinceMS(start)}
	}
	req.Header.Set("api-key", creds.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	latency := sinceMS(start)
	if err != nil {
		return SendResult{Err: domain.NewTransientError(err.Error()), LatencyMS: latency}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed brevoSendResponse
		_ = json.Unmarshal(raw, &parsed)
		a.logger.WithFields(logrus.Fields{"provider": "brevo", "message_id": parsed.MessageID}).Debug("email sent")
		return SendResult{Success: true, MessageID: parsed.MessageID, LatencyMS: latency}
	}

	if isPermanentBrevoFailure(resp.StatusCode) {
		return SendResult{Err: domain.NewPermanentError(fmt.Sprintf("brevo %d: %s", resp.StatusCode, string(raw))), LatencyMS: latency, PermanentFailure: true}
	}
	return SendResult{Err: domain.NewTransientError(fmt.Sprintf("brevo %d: %s", resp.StatusCode, string(raw))), LatencyMS: latency}
}

func isPermanentBrevoFailure(status int) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return false
	}
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}

type brevoAccountResponse struct {
	Plan []struct {
		Credits      int    `json:"credits"`
		CreditsType  string `json:"creditsType"`
	} `json:"plan"`
}

func (a *BrevoAdapter) GetQuotaLive(ctx context.Context) Quota {
	creds, err := a.vault.GetCredentials(ctx, domain.ProviderBrevo)
	if err != nil {
		return Quota{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, brevoAccountURL, nil)
	if err != nil {
		return Quota{Err: err}
	}
	req.Header.Set("api-key", creds.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Quota{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quota{Err: fmt.Errorf("brevo account HTTP %d", resp.StatusCode)}
	}

	var parsed brevoAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Quota{Err: err}
	}
	if len(parsed.Plan) == 0 {
		return Quota{}
	}

	remaining := parsed.Plan[0].Credits
	return Quota{MonthlyRemaining: &remaining}
}

func (a *BrevoAdapter) Ping(ctx context.Context, detailed bool) PingResult {
	start := time.Now()
	creds, err := a.vault.GetCredentials(ctx, domain.ProviderBrevo)
	if err != nil {
		return PingResult{Status: PingUnconfigured, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, brevoAccountURL, nil)
	if err != nil {
		return PingResult{Status: PingError, Message: err.Error(), LatencyMS: sinceMS(start)}
	}
	req.Header.Set("api-key", creds.APIKey)

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
