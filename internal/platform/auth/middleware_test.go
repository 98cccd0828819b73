package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubVerifier struct {
	identity *Identity
	err      error
	received string
}

func (s *stubVerifier) Verify(tokenStr string) (*Identity, error) {
	s.received = tokenStr
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubVerifier{
		identity: &Identity{
			UID:      "uid-123",
			Username: "alice",
			Email:    "user@example.com",
			Roles:    []string{"admin", "user"},
		},
	}

	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected admin role, got %v", identity.Roles)
		}
		if identity.Email != "user@example.com" {
			t.Fatalf("expected email user@example.com, got %s", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected downstream handler to run")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("expected verifier to receive raw token, got %q", verifier.received)
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{identity: &Identity{UID: "uid"}})

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "unauthenticated")
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{err: ErrTokenExpired})

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run with an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "token_expired")
}

func TestRequireAuth_InsufficientRole(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{identity: &Identity{UID: "uid", Roles: []string{"user"}}})

	handler := authn.RequireAuth(RoleAdmin, RoleOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without required role")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/admin/orders/ord_1", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	assertErrorCode(t, rec, "insufficient_role")
}

func TestRequireAuth_FallbackRole(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{identity: &Identity{UID: "uid"}})

	handler := authn.RequireAuth(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleUser) {
			t.Fatalf("expected fallback user role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPolicyChecks(t *testing.T) {
	owner := &Identity{UID: "uid-owner", Roles: []string{RoleOwner}}
	admin := &Identity{UID: "uid-admin", Roles: []string{RoleAdmin}}
	user := &Identity{UID: "uid-user", Roles: []string{RoleUser}}

	if !CanMutateCatalog(owner) {
		t.Fatalf("owner should mutate catalog")
	}
	if CanMutateCatalog(admin) || CanMutateCatalog(user) {
		t.Fatalf("only owner may mutate catalog")
	}

	if !CanManageOrders(admin) || !CanManageOrders(owner) {
		t.Fatalf("admin and owner should manage orders")
	}
	if CanManageOrders(user) {
		t.Fatalf("user should not manage orders")
	}

	if !CanReadOrder(user, "uid-user") {
		t.Fatalf("owner of the order should read it")
	}
	if CanReadOrder(user, "uid-other") {
		t.Fatalf("non-owner user should not read a foreign order")
	}
	if !CanReadOrder(admin, "uid-other") {
		t.Fatalf("admin should read any order")
	}

	if !CanCreateOrder(user) || !CanCreateOrder(admin) {
		t.Fatalf("any authenticated identity should create orders")
	}
	if CanCreateOrder(nil) || CanCreateOrder(&Identity{}) {
		t.Fatalf("unauthenticated callers should not create orders")
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid error payload: %v", err)
	}
	if got, _ := payload["error"].(string); got != want {
		t.Fatalf("expected error code %q, got %q", want, got)
	}
}
