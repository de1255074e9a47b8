// Package enqueueapi implements the Enqueue API (spec §4.11): the
// producer-facing entrypoint that validates, checks suppression,
// dedupes, and persists a new queued email. Grounded on the teacher's
// internal/handlers validate-then-call-service pattern, reshaped around
// this domain's own sentinel error taxonomy.
package enqueueapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/queue"
	"github.com/cloud-consulting/email-engine/internal/ratelimit"
	"github.com/cloud-consulting/email-engine/internal/suppression"
)

// PerRecipientLimit/PerRecipientWindow bound spec §4.4's "per-recipient
// request gating": at most this many enqueue calls for the same
// (recipient, type) pair within the window, independent of the
// dedup_key exact-duplicate check the Queue Store performs.
const (
	PerRecipientLimit  = 5
	PerRecipientWindow = 10 * time.Minute
)

// Request is the producer-facing input shape (spec §4.11).
type Request struct {
	To          string              `json:"to" binding:"required,email"`
	Type        domain.EmailType    `json:"type" binding:"required,email_type"`
	Content     ContentRequest      `json:"content" binding:"required"`
	DedupKey    *string             `json:"dedup_key,omitempty"`
	ScheduledAt *time.Time          `json:"scheduled_at,omitempty"`
}

// ContentRequest is the nested content payload.
type ContentRequest struct {
	Subject  string  `json:"subject" binding:"required"`
	HTML     string  `json:"html" binding:"required"`
	Text     string  `json:"text,omitempty"`
	From     string  `json:"from,omitempty"`
	ReplyTo  string  `json:"reply_to,omitempty"`
}

// Response is the producer-facing output shape.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// API is the Enqueue API component (C11).
type API struct {
	store       *queue.Store
	suppression *suppression.List
	rateLimiter *ratelimit.Limiter
	logger      *logrus.Logger
}

func New(store *queue.Store, suppressionList *suppression.List, rateLimiter *ratelimit.Limiter, logger *logrus.Logger) *API {
	return &API{store: store, suppression: suppressionList, rateLimiter: rateLimiter, logger: logger}
}

// Enqueue validates, checks suppression, rate-gates, dedupes, and
// persists req, per spec §4.11's steps.
func (a *API) Enqueue(ctx context.Context, req Request, callerSubject *string) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}

	suppressed, err := a.suppression.IsSuppressed(ctx, req.To)
	if err != nil {
		return Response{}, fmt.Errorf("enqueueapi: suppression check: %w", err)
	}
	if suppressed {
		return Response{}, domain.ErrSuppressed
	}

	rateKey := fmt.Sprintf("%s:%s", req.To, req.Type)
	rateOK, err := a.rateLimiter.CheckKey(ctx, rateKey, PerRecipientLimit, PerRecipientWindow)
	if err != nil {
		return Response{}, fmt.Errorf("enqueueapi: rate gate check: %w", err)
	}
	if !rateOK {
		return Response{}, domain.ErrRateLimited
	}

	id, err := a.store.Enqueue(ctx, queue.EnqueueRequest{
		RecipientEmail: req.To,
		EmailType:      req.Type,
		Content: domain.EmailContent{
			Subject:  req.Content.Subject,
			HTML:     req.Content.HTML,
			Text:     req.Content.Text,
			From:     req.Content.From,
			ReplyTo:  req.Content.ReplyTo,
		},
		DedupKey:      req.DedupKey,
		ScheduledAt:   req.ScheduledAt,
		CallerSubject: callerSubject,
	})
	if err != nil {
		return Response{}, fmt.Errorf("enqueueapi: enqueue: %w", err)
	}

	a.logger.WithFields(logrus.Fields{"queue_id": id, "email_type": req.Type}).Info("enqueueapi: email queued")
	return Response{ID: id, Status: "queued"}, nil
}

// validate implements spec §4.11 step 1.
func validate(req Request) error {
	if strings.TrimSpace(req.To) == "" {
		return fmt.Errorf("%w: to is required", domain.ErrInvalidArgument)
	}
	if !strings.Contains(req.To, "@") {
		return fmt.Errorf("%w: to is not a valid email address", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content.Subject) == "" {
		return fmt.Errorf("%w: content.subject is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content.HTML) == "" {
		return fmt.Errorf("%w: content.html is required", domain.ErrInvalidArgument)
	}
	if req.Type == "" {
		return fmt.Errorf("%w: type is required", domain.ErrInvalidArgument)
	}
	if !isKnownEmailType(req.Type) {
		return fmt.Errorf("%w: type %q is not a recognized email type", domain.ErrInvalidArgument, req.Type)
	}
	return nil
}

// isKnownEmailType reports whether t is one of the email type enum
// values the data model defines (spec §3).
func isKnownEmailType(t domain.EmailType) bool {
	switch t {
	case domain.EmailTypeAuth, domain.EmailTypeChat, domain.EmailTypeFoodListing,
		domain.EmailTypeFeedback, domain.EmailTypeReviewReminder, domain.EmailTypeNewsletter,
		domain.EmailTypeAnnouncement:
		return true
	default:
		return false
	}
}
