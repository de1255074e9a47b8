package providers

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/clock"
	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/vault"
)

// SESAdapter speaks the raw SES query-protocol API directly: it builds an
// application/x-www-form-urlencoded POST and signs it with SigV4 itself
// (see sigv4.go), rather than going through aws-sdk-go-v2/service/ses as
// the teacher's internal/services/ses.go does. The SDK's SES client would
// make the signing step opaque and impossible to unit test without the
// network, which spec §9 explicitly rules out ("implement as a pure
// function ... testable without any network"). aws-sdk-go-v2 is still
// used elsewhere (see internal/vault) for credential resolution.
type SESAdapter struct {
	vault      *vault.Vault
	httpClient *http.Client
	clock      clock.Clock
	logger     *logrus.Logger
	fromEmail  string
	fromName   string
}

func NewSESAdapter(v *vault.Vault, fromEmail, fromName string, clk clock.Clock, logger *logrus.Logger) *SESAdapter {
	return &SESAdapter{
		vault:      v,
		httpClient: &http.Client{Timeout: SendTimeout},
		clock:      clk,
		logger:     logger,
		fromEmail:  fromEmail,
		fromName:   fromName,
	}
}

func (a *SESAdapter) Provider() domain.Provider { return domain.ProviderSES }

func sesEndpoint(region string) string {
	return fmt.Sprintf("https://email.%s.amazonaws.com/", region)
}

func sesHost(region string) string {
	return fmt.Sprintf("email.%s.amazonaws.com", region)
}

type sesSendEmailResponse struct {
	XMLName xml.Name `xml:"SendEmailResponse"`
	Result  struct {
		MessageID string `xml:"MessageId"`
	} `xml:"SendEmailResult"`
}

type sesErrorResponse struct {
	XMLName xml.Name `xml:"ErrorResponse"`
	Error   struct {
		Type    string `xml:"Type"`
		Code    string `xml:"Code"`
		Message string `xml:"Message"`
	} `xml:"Error"`
}

type sesGetSendQuotaResponse struct {
	XMLName xml.Name `xml:"GetSendQuotaResponse"`
	Result  struct {
		Max24HourSend   string `xml:"Max24HourSend"`
		MaxSendRate     string `xml:"MaxSendRate"`
		SentLast24Hours string `xml:"SentLast24Hours"`
	} `xml:"GetSendQuotaResult"`
}

func (a *SESAdapter) Send(ctx context.Context, email *domain.QueuedEmail) SendResult {
	start := time.Now()

	creds, err := a.vault.GetCredentials(ctx, domain.ProviderSES)
	if err != nil {
		return SendResult{Err: domain.NewTransientError("ses unconfigured: " + err.Error()), LatencyMS: sinceMS(start)}
	}

	from := email.Content.From
	if from == "" {
		from = a.fromEmail
	}
	fromName := email.Content.FromName
	if fromName == "" {
		fromName = a.fromName
	}
	source := from
	if fromName != "" {
		source = fmt.Sprintf("%s <%s>", fromName, from)
	}

	fields := map[string]string{
		"Action":                           "SendEmail",
		"Source":                           source,
		"Destination.ToAddresses.member.1": email.RecipientEmail,
		"Message.Subject.Data":             email.Content.Subject,
		"Message.Body.Html.Data":           email.Content.HTML,
	}
	if email.Content.Text != "" {
		fields["Message.Body.Text.Data"] = email.Content.Text
	}
	if email.Content.ReplyTo != "" {
		fields["ReplyToAddresses.member.1"] = email.Content.ReplyTo
	}

	resp, raw, err := a.doSigned(ctx, creds, fields)
	latency := sinceMS(start)
	if err != nil {
		return SendResult{Err: domain.NewTransientError(err.Error()), LatencyMS: latency}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var parsed sesSendEmailResponse
		_ = xml.Unmarshal(raw, &parsed)
		a.logger.WithFields(logrus.Fields{"provider": "ses", "message_id": parsed.Result.MessageID}).Debug("email sent")
		return SendResult{Success: true, MessageID: parsed.Result.MessageID, LatencyMS: latency}
	}

	errMsg := string(raw)
	var parsedErr sesErrorResponse
	if xmlErr := xml.Unmarshal(raw, &parsedErr); xmlErr == nil && parsedErr.Error.Message != "" {
		errMsg = fmt.Sprintf("%s: %s", parsedErr.Error.Code, parsedErr.Error.Message)
	}

	if isPermanentSESFailure(resp.StatusCode, parsedErr.Error.Code) {
		return SendResult{Err: domain.NewPermanentError(fmt.Sprintf("ses %d: %s", resp.StatusCode, errMsg)), LatencyMS: latency, PermanentFailure: true}
	}
	return SendResult{Err: domain.NewTransientError(fmt.Sprintf("ses %d: %s", resp.StatusCode, errMsg)), LatencyMS: latency}
}

// isPermanentSESFailure classifies SES's named error codes for invalid or
// unverified recipients/senders as permanent; throttling and 5xx remain
// transient per spec §4.1.
func isPermanentSESFailure(status int, code string) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return false
	}
	switch code {
	case "MessageRejected", "InvalidParameterValue", "MailFromDomainNotVerifiedException":
		return true
	}
	return status == http.StatusBadRequest
}

func (a *SESAdapter) GetQuotaLive(ctx context.Context) Quota {
	creds, err := a.vault.GetCredentials(ctx, domain.ProviderSES)
	if err != nil {
		return Quota{Err: err}
	}

	resp, raw, err := a.doSigned(ctx, creds, map[string]string{"Action": "GetSendQuota"})
	if err != nil {
		return Quota{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quota{Err: fmt.Errorf("ses GetSendQuota HTTP %d", resp.StatusCode)}
	}

	var parsed sesGetSendQuotaResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return Quota{Err: err}
	}

	max24h, _ := strconv.ParseFloat(parsed.Result.Max24HourSend, 64)
	sent, _ := strconv.ParseFloat(parsed.Result.SentLast24Hours, 64)

	return Quota{
		DailySent:  int(sent),
		DailyLimit: int(max24h),
	}
}

func (a *SESAdapter) Ping(ctx context.Context, detailed bool) PingResult {
	start := time.Now()
	creds, err := a.vault.GetCredentials(ctx, domain.ProviderSES)
	if err != nil {
		return PingResult{Status: PingUnconfigured, Message: err.Error()}
	}

	resp, _, err := a.doSigned(ctx, creds, map[string]string{"Action": "GetSendQuota"})
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

// doSigned builds, signs and executes one SES form-POST.
func (a *SESAdapter) doSigned(ctx context.Context, creds vault.Credentials, fields map[string]string) (*http.Response, []byte, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}
	host := sesHost(region)
	bodyStr := EncodeSESForm(fields)

	headers := SignSigV4(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken, region, "ses",
		SigV4Request{Method: http.MethodPost, Host: host, Path: "/", Body: bodyStr}, a.clock.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sesEndpoint(region), strings.NewReader(bodyStr))
	if err != nil {
		return nil, nil, err
	}
	req.Host = host
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Amz-Date", headers.AmzDate)
	req.Header.Set("Authorization", headers.Authorization)
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, err
	}
	// Re-wrap the already-drained body so callers can still resp.Body.Close().
	resp.Body = io.NopCloser(strings.NewReader(string(raw)))
	return resp, raw, nil
}
