package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanentResendFailure(t *testing.T) {
	assert.False(t, isPermanentResendFailure(http.StatusTooManyRequests, nil))
	assert.False(t, isPermanentResendFailure(http.StatusInternalServerError, nil))
	assert.False(t, isPermanentResendFailure(http.StatusBadGateway, nil))
	assert.True(t, isPermanentResendFailure(http.StatusBadRequest, nil))
	assert.True(t, isPermanentResendFailure(http.StatusUnprocessableEntity, nil))
	assert.False(t, isPermanentResendFailure(http.StatusUnauthorized, nil))
}

func TestIsPermanentBrevoFailure(t *testing.T) {
	assert.False(t, isPermanentBrevoFailure(http.StatusTooManyRequests))
	assert.False(t, isPermanentBrevoFailure(http.StatusServiceUnavailable))
	assert.True(t, isPermanentBrevoFailure(http.StatusBadRequest))
	assert.True(t, isPermanentBrevoFailure(http.StatusUnprocessableEntity))
	assert.False(t, isPermanentBrevoFailure(http.StatusForbidden))
}

func TestIsPermanentSESFailure(t *testing.T) {
	assert.False(t, isPermanentSESFailure(http.StatusTooManyRequests, ""))
	assert.False(t, isPermanentSESFailure(http.StatusInternalServerError, "MessageRejected"), "5xx always stays transient regardless of error code")

	assert.True(t, isPermanentSESFailure(http.StatusBadRequest, "MessageRejected"))
	assert.True(t, isPermanentSESFailure(http.StatusBadRequest, "InvalidParameterValue"))
	assert.True(t, isPermanentSESFailure(http.StatusBadRequest, "MailFromDomainNotVerifiedException"))

	assert.True(t, isPermanentSESFailure(http.StatusBadRequest, "SomeOtherCode"))
	assert.False(t, isPermanentSESFailure(http.StatusUnauthorized, "SomeOtherCode"))
}
