package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SigV4Request is the minimal request shape SignSigV4 needs to compute a
// signature. It deliberately does not depend on net/http so the signer is
// a pure function of (credentials, region, service, request), per spec §9:
// "implement as a pure function ... testable without any network."
type SigV4Request struct {
	Method string
	Host   string
	Path   string
	Body   string // already-encoded application/x-www-form-urlencoded body
}

// SigV4Headers is the set of headers SignSigV4 computes. The caller
// attaches these to the outgoing net/http.Request.
type SigV4Headers struct {
	AmzDate       string
	Authorization string
}

// SignSigV4 computes the AWS Signature Version 4 authorization header for
// a single request, following the canonical-request -> string-to-sign ->
// signing-key chain: AWS4<secret> -> date -> region -> service ->
// "aws4_request". signedHeaders is fixed to "host;x-amz-date", matching
// the minimal SES form-encoded POST this engine sends.
func SignSigV4(accessKeyID, secretAccessKey, sessionToken, region, service string, req SigV4Request, now time.Time) SigV4Headers {
	amzDate := now.UTC().Format("20060102T150405Z")
	dateStamp := now.UTC().Format("20060102")

	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n", req.Host, amzDate)
	signedHeaders := "host;x-amz-date"

	payloadHash := sha256Hex(req.Body)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.Path),
		"", // no query string on the signed SES form-POST
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, region, service)

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hex(canonicalRequest),
	}, "\n")

	signingKey := signatureKey(secretAccessKey, dateStamp, region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authHeader := fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKeyID, credentialScope, signedHeaders, signature,
	)
	_ = sessionToken // security-token header attached by caller when present

	return SigV4Headers{AmzDate: amzDate, Authorization: authHeader}
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func signatureKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

// EncodeSESForm builds the application/x-www-form-urlencoded body for a
// SendEmail call, matching the wire-protocol table in spec §6 exactly.
func EncodeSESForm(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, fields[k])
	}
	return values.Encode()
}
