package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CapabilityClaims is the payload of a bearer capability token presented
// for confidential-mode invocations: it asserts which capability ids the
// holder may invoke, scoped to one agent.
type CapabilityClaims struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// TokenVerifier validates capability tokens against a single HMAC
// signing key. cmd/gateway builds it with RECEIPT_SIGNING_KEY, or with a
// built-in development key when that variable is unset.
type TokenVerifier struct {
	key []byte
}

// NewTokenVerifier creates a verifier for the given signing key.
func NewTokenVerifier(key []byte) *TokenVerifier {
	return &TokenVerifier{key: key}
}

// Verify parses and validates a bearer token, returning its claims if
// the signature and expiry check out.
func (v *TokenVerifier) Verify(tokenString string) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: invalid capability token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("identity: capability token failed validation")
	}
	return claims, nil
}

// GrantsCapability reports whether the claims authorize invoking
// capabilityID.
func (c *CapabilityClaims) GrantsCapability(capabilityID string) bool {
	for _, id := range c.Capabilities {
		if id == capabilityID {
			return true
		}
	}
	return false
}

// IssueToken mints a short-lived capability token. Used by the control
// surface that hands out confidential-capability grants and by tests.
func IssueToken(key []byte, agentID string, capabilities []string, ttl time.Duration) (string, error) {
	claims := CapabilityClaims{
		AgentID:      agentID,
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}
