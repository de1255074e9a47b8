package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

type emailTypeHolder struct {
	Type string `binding:"email_type"`
}

func TestCustomValidator_AcceptsEveryKnownEmailType(t *testing.T) {
	cv := NewValidator()
	types := []domain.EmailType{
		domain.EmailTypeAuth, domain.EmailTypeChat, domain.EmailTypeFoodListing,
		domain.EmailTypeFeedback, domain.EmailTypeReviewReminder, domain.EmailTypeNewsletter,
		domain.EmailTypeAnnouncement,
	}
	for _, tp := range types {
		err := cv.ValidateStruct(emailTypeHolder{Type: string(tp)})
		assert.NoError(t, err, "email type %q should validate", tp)
	}
}

func TestCustomValidator_RejectsUnknownEmailType(t *testing.T) {
	cv := NewValidator()
	err := cv.ValidateStruct(emailTypeHolder{Type: "not_a_real_type"})
	assert.Error(t, err)
}

func TestSanitizeInput_StripsTagsAndTrimsWhitespace(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeInput("  <b>hello</b> <i>world</i>  "))
}

func TestSanitizeInput_LeavesPlainTextUntouched(t *testing.T) {
	assert.Equal(t, "plain text", SanitizeInput("plain text"))
}

func TestValidateEmail_AcceptsWellFormedAddresses(t *testing.T) {
	assert.True(t, ValidateEmail("person@example.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.co"))
}

func TestValidateEmail_RejectsMalformedAddresses(t *testing.T) {
	assert.False(t, ValidateEmail("not-an-email"))
	assert.False(t, ValidateEmail("missing-domain@"))
	assert.False(t, ValidateEmail("@missing-local.com"))
}
