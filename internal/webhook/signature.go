// Package webhook implements signed event delivery to registered
// subscribers: fan-out, bounded retries with per-attempt logging,
// dead-lettering, and operator replay.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader and EventTypeHeader are set on every delivery POST.
const (
	SignatureHeader = "X-Signature"
	EventTypeHeader = "X-Event-Type"
	signaturePrefix = "sha256="
)

// Sign computes the signature header value for a raw request body:
// "sha256=" followed by the hex HMAC-SHA256 of the body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature header against the raw body using
// constant-time comparison. Receivers must call this before trusting
// the body.
func Verify(body []byte, secret, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
