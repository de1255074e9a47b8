package enqueueapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

func validRequest() Request {
	return Request{
		To:   "person@example.com",
		Type: domain.EmailTypeAuth,
		Content: ContentRequest{
			Subject: "Confirm your account",
			HTML:    "<p>hello</p>",
		},
	}
}

func TestValidate_AcceptsWellFormedRequest(t *testing.T) {
	assert.NoError(t, validate(validRequest()))
}

func TestValidate_RejectsMissingRecipient(t *testing.T) {
	req := validRequest()
	req.To = ""
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_RejectsMalformedRecipient(t *testing.T) {
	req := validRequest()
	req.To = "not-an-email"
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_RejectsMissingSubject(t *testing.T) {
	req := validRequest()
	req.Content.Subject = "   "
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_RejectsMissingHTML(t *testing.T) {
	req := validRequest()
	req.Content.HTML = ""
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_RejectsMissingType(t *testing.T) {
	req := validRequest()
	req.Type = ""
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_RejectsUnrecognizedType(t *testing.T) {
	req := validRequest()
	req.Type = "bogus"
	err := validate(req)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestValidate_AcceptsEveryKnownEmailType(t *testing.T) {
	for _, tp := range []domain.EmailType{
		domain.EmailTypeAuth, domain.EmailTypeChat, domain.EmailTypeFoodListing,
		domain.EmailTypeFeedback, domain.EmailTypeReviewReminder, domain.EmailTypeNewsletter,
		domain.EmailTypeAnnouncement,
	} {
		req := validRequest()
		req.Type = tp
		assert.NoError(t, validate(req), "type %q should validate", tp)
	}
}

func TestValidate_ErrorsAreDistinguishableByMessage(t *testing.T) {
	req := validRequest()
	req.To = ""
	err := validate(req)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.Contains(t, err.Error(), "to is required")
}
