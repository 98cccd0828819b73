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

// OrderHandlers exposes order placement, item mutation, and lifecycle
// endpoints. Reads are owner-or-staff; status changes and deletion are staff
// only.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/items", h.addItem)
	r.Delete("/{orderID}/items/{productID}", h.removeItem)
	r.Post("/{orderID}:status", h.transitionStatus)
	r.Delete("/{orderID}", h.deleteOrder)
}

type createOrderRequest struct {
	Currency string             `json:"currency"`
	Items    []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type transitionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"order_number"`
	UserID        string             `json:"user_id"`
	Status        string             `json:"status"`
	Currency      string             `json:"currency"`
	Totals        orderTotalsPayload `json:"totals"`
	Items         []orderItemPayload `json:"items"`
	PaymentID     string             `json:"payment_id,omitempty"`
	PaymentStatus string             `json:"payment_status,omitempty"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
	PaidAt        string             `json:"paid_at,omitempty"`
	ShippedAt     string             `json:"shipped_at,omitempty"`
	DeliveredAt   string             `json:"delivered_at,omitempty"`
	CancelledAt   string             `json:"cancelled_at,omitempty"`
	RefundedAt    string             `json:"refunded_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanCreateOrder(identity) {
		writeForbidden(ctx, w)
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:   identity.UID,
		Currency: req.Currency,
		Items:    items,
		ActorID:  identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pagination, err := paginationFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	// Regular users always see their own orders. Staff may scope to another
	// user or, with scope=all, to every order.
	userID := identity.UID
	requestedUser := strings.TrimSpace(query.Get("user_id"))
	scopeAll := strings.EqualFold(strings.TrimSpace(query.Get("scope")), "all")
	if requestedUser != "" || scopeAll {
		if !auth.CanManageOrders(identity) {
			writeForbidden(ctx, w)
			return
		}
		userID = requestedUser
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	page, err := h.orders.List(ctx, services.OrderListFilter{
		UserID:     userID,
		Status:     parseFilterValues(query["status"]),
		DateRange:  dateRange,
		Pagination: pagination,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !auth.CanReadOrder(identity, order.UserID) {
		writeForbidden(ctx, w)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !auth.CanReadOrder(identity, order.UserID) {
		writeForbidden(ctx, w)
		return
	}

	var req orderItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	updated, err := h.orders.AddItem(ctx, services.AddOrderItemCommand{
		OrderID:   orderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !auth.CanReadOrder(identity, order.UserID) {
		writeForbidden(ctx, w)
		return
	}

	updated, err := h.orders.RemoveItem(ctx, services.RemoveOrderItemCommand{
		OrderID:   orderID,
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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

	var req transitionStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: services.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID:      identity.UID,
		Reason:       req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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

	if err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
	}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Totals.Total,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Total:    order.Totals.Total,
		},
		Items:         make([]orderItemPayload, 0, len(order.Items)),
		PaymentID:     stringValue(order.PaymentID),
		PaymentStatus: stringValue(order.PaymentStatus),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		PaidAt:        formatTime(pointerTime(order.PaidAt)),
		ShippedAt:     formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:   formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:   formatTime(pointerTime(order.CancelledAt)),
		RefundedAt:    formatTime(pointerTime(order.RefundedAt)),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
