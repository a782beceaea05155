package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintSuffixLen bounds how much of the credential feeds the cache key.
// The suffix carries the token signature, which is unique per token, so the
// digest stays collision-resistant without hashing arbitrarily large inputs.
const fingerprintSuffixLen = 64

// Fingerprint derives the fixed-length cache key for a credential. The raw
// credential is never used as a key: keys must be bounded and must not be
// recoverable secrets.
func Fingerprint(credential string) string {
	suffix := credential
	if len(suffix) > fingerprintSuffixLen {
		suffix = suffix[len(suffix)-fingerprintSuffixLen:]
	}
	sum := sha256.Sum256([]byte(suffix))
	return hex.EncodeToString(sum[:])
}
