package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the session claim set: subject id, username, role, issue and
// expiry times, and a per-token nonce.
type Claims struct {
	UID      int64  `json:"uid"`
	Username string `json:"usr"`
	Role     string `json:"role"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies HMAC-SHA256 session tokens signed with the
// process-wide secret. Tokens are three base64url segments joined by ".".
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret — the 32-byte signing secret from LoadOrCreateSecret.
//	ttl    — token lifetime (default: 8 hours).
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue creates a signed session token for the given identity.
func (t *TokenIssuer) Issue(id int64, username, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UID:      id,
		Username: username,
		Role:     role,
		Nonce:    uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
// Signature mismatch, malformed structure, and elapsed expiry all fail.
func (t *TokenIssuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}
