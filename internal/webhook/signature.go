// Package webhook implements signed webhook delivery (C10): picking due
// delivery rows, POSTing the signed JSON body, and scheduling retries or
// disabling the subscription after too many consecutive failures, per
// spec §4.10.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 signature of body under secret,
// matching spec §6's wire format header
// "X-Signature: sha256=<hex>" (the "sha256=" prefix is added by the
// sender, not this function, so callers can verify against a bare hash).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig (the hex digest, without any "sha256=" prefix)
// matches the HMAC-SHA256 of body under secret, used by (external)
// receivers validating an inbound delivery and by this package's own tests
// (spec §8 invariant 8).
func Verify(secret string, body []byte, sig string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(sig))
}
