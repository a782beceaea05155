// Package token verifies bearer session credentials. The verifier is a
// trusted black box to the session validator: it either returns the verified
// subject (the provider's external id) or an unauthorized error.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"idsync/internal/platform/config"
	dErrors "idsync/pkg/domain-errors"
)

// Claims are the session token claims. Subject carries the external identity.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Verify parses and validates the credential, returning the subject external
// id. All verification failures (expired, malformed, bad signature, wrong
// issuer/audience) come back as CodeUnauthorized so callers can distinguish
// "not authenticated" from a service failure.
func (v *Verifier) Verify(credential string) (string, error) {
	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithAudience(v.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims.Subject, nil
}

// Issue signs a token for the given subject. Used by tests and local tooling;
// production tokens come from the identity provider.
func (v *Verifier) Issue(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			Audience:  []string{v.audience},
		},
	})
	return tok.SignedString(v.signingKey)
}
