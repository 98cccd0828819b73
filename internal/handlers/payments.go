package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cuakstore/api/internal/payments"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/platform/httpx"
	"github.com/cuakstore/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// PaymentHandlers exposes checkout intent creation and payment status reads.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	orders   services.OrderService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, paymentSvc services.PaymentService, orders services.OrderService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: paymentSvc, orders: orders}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/intent", h.createIntent)
	r.Get("/orders/{orderID}", h.paymentStatus)
	r.Post("/orders/{orderID}:refund", h.refund)
}

type createIntentRequest struct {
	OrderID string `json:"order_id"`
}

type paymentIntentResponse struct {
	OrderID      string `json:"order_id"`
	PreferenceID string `json:"preference_id"`
	RedirectURL  string `json:"redirect_url"`
	SuccessURL   string `json:"success_url,omitempty"`
	FailureURL   string `json:"failure_url,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type paymentSummaryResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createIntentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if !h.authorizeOrderAccess(ctx, w, identity, strings.TrimSpace(req.OrderID)) {
		return
	}

	intent, err := h.payments.CreateIntent(ctx, services.CreatePaymentIntentCommand{
		OrderID: req.OrderID,
		ActorID: identity.UID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		OrderID:      intent.OrderID,
		PreferenceID: intent.PreferenceID,
		RedirectURL:  intent.RedirectURL,
		SuccessURL:   intent.SuccessURL,
		FailureURL:   intent.FailureURL,
		CreatedAt:    formatTime(intent.CreatedAt),
	})
}

func (h *PaymentHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if !h.authorizeOrderAccess(ctx, w, identity, orderID) {
		return
	}

	summary, err := h.payments.Status(ctx, orderID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentSummary(summary))
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanManageOrders(identity) {
		writeForbidden(ctx, w)
		return
	}

	var req refundRequest
	if data, err := readLimitedBody(r, maxRequestBodySize); err == nil {
		if err := json.Unmarshal(data, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	summary, err := h.payments.Refund(ctx, services.RefundPaymentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentSummary(summary))
}

// authorizeOrderAccess checks the caller owns the order or holds a staff role.
// It writes the response on failure and reports whether to proceed.
func (h *PaymentHandlers) authorizeOrderAccess(ctx context.Context, w http.ResponseWriter, identity *auth.Identity, orderID string) bool {
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return false
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return false
	}
	if !auth.CanReadOrder(identity, order.UserID) {
		writeForbidden(ctx, w)
		return false
	}
	return true
}

func buildPaymentSummary(summary services.PaymentSummary) paymentSummaryResponse {
	return paymentSummaryResponse{
		OrderID:       summary.OrderID,
		Status:        string(summary.Status),
		PaymentID:     stringValue(summary.PaymentID),
		PaymentStatus: stringValue(summary.PaymentStatus),
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnresolvedReference):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unresolved", "payment carries no order reference", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider error", http.StatusBadGateway))
	default:
		writeOrderError(ctx, w, err)
	}
}

// WebhookHandlers receives asynchronous notifications from the payment
// provider. Signature verification replaces bearer authentication here.
type WebhookHandlers struct {
	secret   string
	payments services.PaymentService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(secret string, paymentSvc services.PaymentService, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{secret: secret, payments: paymentSvc, logger: logger}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripeWebhook)
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	notification, err := payments.ParseStripeWebhook(body, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		if errors.Is(err, payments.ErrWebhookSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed webhook payload", http.StatusBadRequest))
		return
	}

	// Events that carry no payment are acknowledged so the provider stops
	// redelivering them.
	if notification.PaymentID == "" {
		h.logger(ctx, "webhook.stripe.skipped", map[string]any{"eventType": notification.EventType})
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	summary, err := h.payments.Reconcile(ctx, services.ReconcilePaymentCommand{PaymentID: notification.PaymentID})
	if err != nil {
		// Unresolvable payments are acknowledged: retrying the delivery
		// cannot attach a reference the payment never carried.
		if errors.Is(err, services.ErrPaymentUnresolvedReference) {
			h.logger(ctx, "webhook.stripe.unresolved", map[string]any{
				"eventId":   notification.EventID,
				"paymentId": notification.PaymentID,
			})
			writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		writePaymentError(ctx, w, err)
		return
	}

	h.logger(ctx, "webhook.stripe.processed", map[string]any{
		"eventId":   notification.EventID,
		"paymentId": notification.PaymentID,
		"orderId":   summary.OrderID,
		"status":    string(summary.Status),
	})
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
