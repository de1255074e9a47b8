package providers

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedSigningTime() time.Time {
	return time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
}

func TestSignSigV4_AmzDateMatchesISO8601Basic(t *testing.T) {
	headers := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", SigV4Request{
		Method: "POST", Host: "email.us-east-1.amazonaws.com", Path: "/", Body: "Action=SendEmail",
	}, fixedSigningTime())

	assert.Equal(t, "20260729T120000Z", headers.AmzDate)
}

func TestSignSigV4_AuthorizationHeaderShape(t *testing.T) {
	headers := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", SigV4Request{
		Method: "POST", Host: "email.us-east-1.amazonaws.com", Path: "/", Body: "Action=SendEmail",
	}, fixedSigningTime())

	pattern := `^AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20260729/us-east-1/ses/aws4_request, SignedHeaders=host;x-amz-date, Signature=[0-9a-f]{64}$`
	assert.Regexp(t, regexp.MustCompile(pattern), headers.Authorization)
}

func TestSignSigV4_IsDeterministicForIdenticalInputs(t *testing.T) {
	req := SigV4Request{Method: "POST", Host: "email.us-east-1.amazonaws.com", Path: "/", Body: "Action=SendEmail"}

	h1 := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", req, fixedSigningTime())
	h2 := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", req, fixedSigningTime())

	assert.Equal(t, h1, h2)
}

func TestSignSigV4_DifferentBodyProducesDifferentSignature(t *testing.T) {
	base := SigV4Request{Method: "POST", Host: "email.us-east-1.amazonaws.com", Path: "/", Body: "Action=SendEmail"}
	changed := base
	changed.Body = "Action=SendEmail&Extra=1"

	h1 := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", base, fixedSigningTime())
	h2 := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", changed, fixedSigningTime())

	assert.NotEqual(t, h1.Authorization, h2.Authorization)
}

func TestSignSigV4_DifferentRegionProducesDifferentSignature(t *testing.T) {
	req := SigV4Request{Method: "POST", Host: "email.us-east-1.amazonaws.com", Path: "/", Body: "Action=SendEmail"}

	h1 := SignSigV4("AKIAEXAMPLE", "secret", "", "us-east-1", "ses", req, fixedSigningTime())
	h2 := SignSigV4("AKIAEXAMPLE", "secret", "", "eu-west-1", "ses", req, fixedSigningTime())

	assert.NotEqual(t, h1.Authorization, h2.Authorization)
}

func TestCanonicalURI_EmptyPathBecomesRoot(t *testing.T) {
	assert.Equal(t, "/", canonicalURI(""))
	assert.Equal(t, "/", canonicalURI("/"))
	assert.Equal(t, "/something", canonicalURI("/something"))
}

func TestEncodeSESForm_SortsKeysAndEncodesValues(t *testing.T) {
	body := EncodeSESForm(map[string]string{
		"Action":      "SendEmail",
		"Source":      "Alerts <alerts@example.com>",
		"Destination": "user@example.com",
	})

	expected := fmt.Sprintf("Action=SendEmail&Destination=user%%40example.com&Source=%s",
		"Alerts+%3Calerts%40example.com%3E")
	assert.Equal(t, expected, body)
}

func TestEncodeSESForm_EmptyMapProducesEmptyString(t *testing.T) {
	assert.Equal(t, "", EncodeSESForm(map[string]string{}))
}
