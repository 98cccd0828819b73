package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrGoogleTokenInvalid signals the Google ID token failed verification.
	ErrGoogleTokenInvalid = errors.New("auth: google id token invalid")
	// ErrGoogleVerifierUnavailable signals the verifier is missing configuration or keys.
	ErrGoogleVerifierUnavailable = errors.New("auth: google verifier unavailable")
)

// GoogleClaims carries the verified payload of a Google ID token.
type GoogleClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Issuer        string
}

// GoogleVerifier validates Google-signed ID tokens using a JWKS cache.
type GoogleVerifier struct {
	cache    *JWKSCache
	audience string
	issuers  map[string]struct{}
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

// GoogleOption customises the verifier.
type GoogleOption func(*GoogleVerifier)

// WithGoogleLogger overrides the verifier logger.
func WithGoogleLogger(logger Logger) GoogleOption {
	return func(v *GoogleVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithGoogleMetrics sets the metrics recorder.
func WithGoogleMetrics(recorder MetricsRecorder) GoogleOption {
	return func(v *GoogleVerifier) {
		v.metrics = recorder
	}
}

// WithGoogleClock injects a custom clock (primarily for testing).
func WithGoogleClock(now func() time.Time) GoogleOption {
	return func(v *GoogleVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewGoogleVerifier constructs a GoogleVerifier bound to the expected audience and issuers.
func NewGoogleVerifier(cache *JWKSCache, audience string, issuers []string, opts ...GoogleOption) *GoogleVerifier {
	allowed := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			continue
		}
		allowed[issuer] = struct{}{}
	}

	verifier := &GoogleVerifier{
		cache:    cache,
		audience: strings.TrimSpace(audience),
		issuers:  allowed,
		logger:   log.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}

	return verifier
}

// Verify checks the token signature, audience, issuer and expiry, returning the claims.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleClaims, error) {
	start := time.Now()
	if v != nil && v.now != nil {
		start = v.now()
	}

	if v == nil || v.cache == nil {
		return nil, ErrGoogleVerifierUnavailable
	}
	if v.audience == "" {
		v.record(ctx, false, "audience_not_configured", start)
		return nil, fmt.Errorf("%w: audience not configured", ErrGoogleVerifierUnavailable)
	}
	if strings.TrimSpace(idToken) == "" {
		v.record(ctx, false, "token_missing", start)
		return nil, fmt.Errorf("%w: token missing", ErrGoogleTokenInvalid)
	}

	// Expiry is validated manually against the injected clock; the parser
	// only checks the signature and algorithm.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(idToken, claims, v.cache.Keyfunc(ctx)); err != nil {
		reason := "token_invalid"
		if errors.Is(err, ErrJWKSFetchFailed) {
			reason = "jwks_unavailable"
			v.record(ctx, false, reason, start)
			return nil, fmt.Errorf("%w: %v", ErrGoogleVerifierUnavailable, err)
		}
		if v.logger != nil {
			v.logger.Printf("auth: google id token verification failed (%s): %v", reason, err)
		}
		v.record(ctx, false, reason, start)
		return nil, fmt.Errorf("%w: %v", ErrGoogleTokenInvalid, err)
	}

	nowUnix := v.now().Unix()
	if !claims.VerifyExpiresAt(nowUnix, true) {
		v.record(ctx, false, "token_expired", start)
		return nil, fmt.Errorf("%w: token expired", ErrGoogleTokenInvalid)
	}
	if !claims.VerifyNotBefore(nowUnix, false) {
		v.record(ctx, false, "token_not_yet_valid", start)
		return nil, fmt.Errorf("%w: token not yet valid", ErrGoogleTokenInvalid)
	}

	issuer, _ := claims["iss"].(string)
	if len(v.issuers) > 0 {
		if _, ok := v.issuers[issuer]; !ok {
			if v.logger != nil {
				v.logger.Printf("auth: google issuer mismatch, got %q", issuer)
			}
			v.record(ctx, false, "issuer_mismatch", start)
			return nil, fmt.Errorf("%w: issuer mismatch", ErrGoogleTokenInvalid)
		}
	}

	audiences := audienceFromClaims(claims)
	if !containsString(audiences, v.audience) {
		if v.logger != nil {
			v.logger.Printf("auth: google audience mismatch, expected %q", v.audience)
		}
		v.record(ctx, false, "audience_mismatch", start)
		return nil, fmt.Errorf("%w: audience mismatch", ErrGoogleTokenInvalid)
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		v.record(ctx, false, "missing_subject", start)
		return nil, fmt.Errorf("%w: missing subject", ErrGoogleTokenInvalid)
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	emailVerified := false
	switch verified := claims["email_verified"].(type) {
	case bool:
		emailVerified = verified
	case string:
		emailVerified = strings.EqualFold(verified, "true")
	}

	v.record(ctx, true, "ok", start)
	return &GoogleClaims{
		Subject:       subject,
		Email:         strings.TrimSpace(email),
		EmailVerified: emailVerified,
		Name:          strings.TrimSpace(name),
		Picture:       strings.TrimSpace(picture),
		Issuer:        issuer,
	}, nil
}

func (v *GoogleVerifier) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v == nil || v.metrics == nil {
		return
	}
	duration := v.now().Sub(start)
	v.metrics.RecordVerification(ctx, "google", success, reason, duration)
}

func audienceFromClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["aud"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			item = strings.TrimSpace(item)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				continue
			}
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
