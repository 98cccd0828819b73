package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func TestJWKSCache_KeyCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "key1",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	var mu sync.Mutex
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=3600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	cache := NewJWKSCache(server.URL,
		WithJWKSLogger(noopLogger{}),
		WithJWKSClock(func() time.Time { return time.Unix(1_000_000, 0) }),
	)

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}

	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}

	if got, err = cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", requests)
	}
}

func TestGoogleVerifier_Success(t *testing.T) {
	verifier, metrics, token := setupGoogleTest(t, "client-id.apps.googleusercontent.com", nil)

	claims, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "google-sub-1" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("unexpected email %s", claims.Email)
	}
	if !claims.EmailVerified {
		t.Fatalf("expected verified email")
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	record := metrics.records[len(metrics.records)-1]
	if !record.success || record.reason != "ok" || record.kind != "google" {
		t.Fatalf("unexpected metric record: %+v", record)
	}
}

func TestGoogleVerifier_AudienceMismatch(t *testing.T) {
	verifier, metrics, token := setupGoogleTest(t, "other-client.apps.googleusercontent.com", nil)

	_, err := verifier.Verify(context.Background(), token)
	if !errors.Is(err, ErrGoogleTokenInvalid) {
		t.Fatalf("expected ErrGoogleTokenInvalid, got %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "audience_mismatch" {
		t.Fatalf("expected audience_mismatch metric, got %+v", metrics.records)
	}
}

func TestGoogleVerifier_IssuerMismatch(t *testing.T) {
	verifier, metrics, token := setupGoogleTest(t, "client-id.apps.googleusercontent.com", func(claims jwt.MapClaims) {
		claims["iss"] = "https://evil.example.com"
	})

	_, err := verifier.Verify(context.Background(), token)
	if !errors.Is(err, ErrGoogleTokenInvalid) {
		t.Fatalf("expected ErrGoogleTokenInvalid, got %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "issuer_mismatch" {
		t.Fatalf("expected issuer_mismatch metric, got %+v", metrics.records)
	}
}

func TestGoogleVerifier_Expired(t *testing.T) {
	verifier, metrics, token := setupGoogleTest(t, "client-id.apps.googleusercontent.com", func(claims jwt.MapClaims) {
		claims["exp"] = float64(time.Unix(1_700_000_000, 0).Add(-time.Hour).Unix())
	})

	_, err := verifier.Verify(context.Background(), token)
	if !errors.Is(err, ErrGoogleTokenInvalid) {
		t.Fatalf("expected ErrGoogleTokenInvalid, got %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "token_expired" {
		t.Fatalf("expected token_expired metric, got %+v", metrics.records)
	}
}

func TestGoogleVerifier_JWKSUnavailable(t *testing.T) {
	verifier, metrics, token := setupGoogleTest(t, "client-id.apps.googleusercontent.com", nil)

	// Point the cache at an unreachable endpoint and force a refresh.
	verifier.cache.url = "http://127.0.0.1:65535/invalid"
	verifier.cache.keys = nil

	_, err := verifier.Verify(context.Background(), token)
	if !errors.Is(err, ErrGoogleVerifierUnavailable) {
		t.Fatalf("expected ErrGoogleVerifierUnavailable, got %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.records[len(metrics.records)-1].reason != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable metric, got %+v", metrics.records)
	}
}

func setupGoogleTest(t *testing.T, audience string, mutateClaims func(jwt.MapClaims)) (*GoogleVerifier, *recordingMetrics, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "g-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	metrics := &recordingMetrics{}
	now := time.Unix(1_700_000_000, 0)

	verifier := NewGoogleVerifier(
		NewJWKSCache(server.URL,
			WithJWKSLogger(noopLogger{}),
			WithJWKSClock(func() time.Time { return now }),
		),
		audience,
		[]string{"https://accounts.google.com", "accounts.google.com"},
		WithGoogleLogger(noopLogger{}),
		WithGoogleMetrics(metrics),
		WithGoogleClock(func() time.Time { return now }),
	)

	claims := jwt.MapClaims{
		"aud":            "client-id.apps.googleusercontent.com",
		"iss":            "https://accounts.google.com",
		"sub":            "google-sub-1",
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Example User",
		"exp":            float64(now.Add(time.Hour).Unix()),
		"iat":            float64(now.Unix()),
	}
	if mutateClaims != nil {
		mutateClaims(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "g-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return verifier, metrics, signed
}
