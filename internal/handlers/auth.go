package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/platform/httpx"
	"github.com/cuakstore/api/internal/services"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// AuthHandlers exposes registration, login, and profile endpoints.
type AuthHandlers struct {
	authn    *auth.Authenticator
	accounts services.AccountService
	limiter  rateLimiter
}

// NewAuthHandlers constructs a new AuthHandlers instance. Login attempts are
// rate limited per client address.
func NewAuthHandlers(authn *auth.Authenticator, accounts services.AccountService) *AuthHandlers {
	return &AuthHandlers{
		authn:    authn,
		accounts: accounts,
		limiter:  newSimpleRateLimiter(loginRateLimit, loginRateWindow, nil),
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/google", h.loginWithGoogle)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Get("/me", h.me)
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expires_at"`
	Account   accountPayload `json:"account"`
}

type accountPayload struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at,omitempty"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	session, err := h.accounts.Register(ctx, services.RegisterAccountCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildSessionResponse(session))
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts", http.StatusTooManyRequests))
		return
	}

	var req loginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	session, err := h.accounts.Login(ctx, services.LoginCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionResponse(session))
}

func (h *AuthHandlers) loginWithGoogle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts", http.StatusTooManyRequests))
		return
	}

	var req googleLoginRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	session, err := h.accounts.LoginWithGoogle(ctx, services.GoogleLoginCommand{IDToken: req.IDToken})
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionResponse(session))
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.accounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("account_service_unavailable", "account service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(ctx, identity.UID)
	if err != nil {
		writeAccountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"account": buildAccountPayload(account)})
}

func buildSessionResponse(session services.AuthSession) sessionResponse {
	return sessionResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		Account:   buildAccountPayload(session.Account),
	}
}

func buildAccountPayload(account domain.UserAccount) accountPayload {
	roles := make([]string, 0, len(account.Roles))
	for _, role := range account.Roles {
		roles = append(roles, string(role))
	}
	return accountPayload{
		ID:        strings.TrimSpace(account.ID),
		Username:  strings.TrimSpace(account.Username),
		Email:     strings.TrimSpace(account.Email),
		Roles:     roles,
		CreatedAt: formatTime(account.CreatedAt),
	}
}

func writeAccountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAccountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAccountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("account_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAccountInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid username or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAccountGoogleUnverified):
		httpx.WriteError(ctx, w, httpx.NewError("google_email_unverified", "google account email is not verified", http.StatusForbidden))
	case errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("account_not_found", "account not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
