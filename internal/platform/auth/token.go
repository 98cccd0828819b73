package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: bearer token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: bearer token invalid")
)

// TokenClaims carries the identity payload embedded in API bearer tokens.
type TokenClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens for API principals.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises TokenIssuer behaviour.
type TokenOption func(*TokenIssuer)

// WithTokenClock injects a custom time source (useful for tests).
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer with the given signing secret.
func NewTokenIssuer(secret, issuer string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Issue signs a bearer token for the identity and returns it with its expiry.
func (t *TokenIssuer) Issue(identity Identity) (string, time.Time, error) {
	if t == nil {
		return "", time.Time{}, errors.New("auth: token issuer is nil")
	}
	if strings.TrimSpace(identity.UID) == "" {
		return "", time.Time{}, errors.New("auth: identity uid is required")
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := TokenClaims{
		Username: identity.Username,
		Email:    identity.Email,
		Roles:    normaliseRoles(identity.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   identity.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a bearer token and returns the embedded identity.
func (t *TokenIssuer) Verify(tokenStr string) (*Identity, error) {
	if t == nil {
		return nil, ErrTokenInvalid
	}

	// Claims are validated manually against the injected clock; the parser
	// only checks the signature and algorithm.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &TokenClaims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := t.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, fmt.Errorf("%w: token expired", ErrTokenExpired)
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}

	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Identity{
		UID:      claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Roles:    normaliseRoles(claims.Roles),
	}, nil
}

func normaliseRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
