// Package webhook ingests signed identity events from the provider and
// translates them into reconciler calls.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	dErrors "idsync/pkg/domain-errors"
)

// SignatureVerifier authenticates a raw delivery. Implementations either
// accept the payload as provider-signed or fail; handlers never inspect the
// crypto themselves.
type SignatureVerifier interface {
	Verify(deliveryID, timestamp string, body []byte, signature string) error
}

// HMACVerifier checks an HMAC-SHA256 signature computed over
// "<deliveryID>.<timestamp>.<body>" with a shared secret. The timestamp is
// unix seconds and must fall within the tolerance window to blunt replay.
type HMACVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewHMACVerifier(secret string, tolerance time.Duration) *HMACVerifier {
	return &HMACVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock overrides the clock. Test hook.
func (v *HMACVerifier) WithClock(now func() time.Time) *HMACVerifier {
	v.now = now
	return v
}

func (v *HMACVerifier) Verify(deliveryID, timestamp string, body []byte, signature string) error {
	if deliveryID == "" || timestamp == "" || signature == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "malformed signature timestamp")
	}
	if drift := v.now().Sub(time.Unix(ts, 0)); drift > v.tolerance || drift < -v.tolerance {
		return dErrors.New(dErrors.CodeUnauthorized, "signature timestamp outside tolerance")
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "malformed signature")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(deliveryID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return dErrors.New(dErrors.CodeUnauthorized, "signature mismatch")
	}
	return nil
}

// Sign computes the signature an authentic provider would attach. Used by
// tests and local tooling.
func (v *HMACVerifier) Sign(deliveryID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(deliveryID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
