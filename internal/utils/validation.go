package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cloud-consulting/email-engine/internal/domain"
)

// CustomValidator wraps go-playground/validator/v10 with the domain's
// own custom validation rules, bound into gin's request binding.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new custom validator instance.
func NewValidator() *CustomValidator {
	v := validator.New()
	// gin's request structs declare their rules in `binding` tags.
	v.SetTagName("binding")

	v.RegisterValidation("email_type", validateEmailType)

	return &CustomValidator{validator: v}
}

// ValidateStruct validates a struct using the custom validator,
// satisfying gin's binding.StructValidator interface so
// c.ShouldBindJSON runs the email_type rule registered above.
func (cv *CustomValidator) ValidateStruct(i interface{}) error {
	return cv.validator.Struct(i)
}

// Engine exposes the underlying validator.Validate instance, the other
// half of gin's binding.StructValidator interface.
func (cv *CustomValidator) Engine() interface{} {
	return cv.validator
}

// validateEmailType validates the email classification used for
// provider priority-list selection (spec §4.6).
func validateEmailType(fl validator.FieldLevel) bool {
	switch domain.EmailType(fl.Field().String()) {
	case domain.EmailTypeAuth, domain.EmailTypeChat, domain.EmailTypeFoodListing,
		domain.EmailTypeFeedback, domain.EmailTypeReviewReminder, domain.EmailTypeNewsletter,
		domain.EmailTypeAnnouncement:
		return true
	default:
		return false
	}
}

// SanitizeInput strips HTML tags and surrounding whitespace from a
// string.
func SanitizeInput(input string) string {
	re := regexp.MustCompile(`<[^>]*>`)
	sanitized := re.ReplaceAllString(input, "")
	return strings.TrimSpace(sanitized)
}

// ValidateEmail validates email format using regex. The Enqueue API's
// own validate does not call it; it checks only for an "@".
func ValidateEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}
