package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/payments"
)

var (
	// ErrPaymentInvalidInput signals invalid arguments for a payment operation.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidState indicates the order cannot accept the payment operation.
	ErrPaymentInvalidState = errors.New("payment: invalid order state")
	// ErrPaymentUnresolvedReference indicates the provider payment carries no
	// order reference this API can reconcile against.
	ErrPaymentUnresolvedReference = errors.New("payment: payment carries no order reference")
	// ErrPaymentProvider wraps failures reported by the payment provider.
	ErrPaymentProvider = errors.New("payment: provider error")
)

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// PaymentServiceConfig carries the redirect URLs handed to the provider when
// creating a checkout session.
type PaymentServiceConfig struct {
	SuccessURL string
	FailureURL string
	PendingURL string
}

// PaymentServiceDeps bundles constructor inputs for the payment service.
type PaymentServiceDeps struct {
	Orders  OrderService
	Gateway paymentGateway
	Config  PaymentServiceConfig
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders  OrderService
	gateway paymentGateway
	config  PaymentServiceConfig
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPaymentService constructs the payment service with the supplied dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:  deps.Orders,
		gateway: deps.Gateway,
		config:  deps.Config,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *paymentService) CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is %s, payment requires %s", ErrPaymentInvalidState, order.ID, order.Status, domain.OrderStatusPending)
	}
	if len(order.Items) == 0 || order.Totals.Total <= 0 {
		return PaymentIntent{}, fmt.Errorf("%w: order %s has nothing to charge", ErrPaymentInvalidState, order.ID)
	}

	lineItems := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, payments.CheckoutLineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
			Currency: order.Currency,
		})
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: order.Currency}, payments.CheckoutSessionRequest{
		OrderID:    order.ID,
		Amount:     order.Totals.Total,
		Currency:   order.Currency,
		SuccessURL: s.config.SuccessURL,
		CancelURL:  s.config.FailureURL,
		Items:      lineItems,
		Metadata: map[string]string{
			"orderNumber": order.OrderNumber,
		},
	})
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	// When the PSP exposes a payment reference up front, record it so status
	// queries work before the first webhook arrives.
	if session.IntentID != "" {
		if _, err := s.orders.ApplyPaymentResult(ctx, ApplyPaymentResultCommand{
			OrderID:       order.ID,
			PaymentID:     session.IntentID,
			PaymentStatus: string(payments.StatusPending),
			ActorID:       strings.TrimSpace(cmd.ActorID),
		}); err != nil {
			return PaymentIntent{}, err
		}
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"orderId":      order.ID,
		"preferenceId": session.ID,
		"provider":     session.Provider,
		"amount":       order.Totals.Total,
	})

	return PaymentIntent{
		OrderID:      order.ID,
		PreferenceID: session.ID,
		RedirectURL:  session.RedirectURL,
		SuccessURL:   s.config.SuccessURL,
		FailureURL:   s.config.FailureURL,
		CreatedAt:    s.clock(),
	}, nil
}

func (s *paymentService) Reconcile(ctx context.Context, cmd ReconcilePaymentCommand) (PaymentSummary, error) {
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		return PaymentSummary{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}

	details, err := s.gateway.LookupPayment(ctx, payments.PaymentContext{}, payments.LookupRequest{PaymentID: paymentID})
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	orderID := strings.TrimSpace(details.Reference)
	if orderID == "" {
		return PaymentSummary{}, fmt.Errorf("%w: payment %s", ErrPaymentUnresolvedReference, paymentID)
	}

	order, err := s.orders.ApplyPaymentResult(ctx, ApplyPaymentResultCommand{
		OrderID:       orderID,
		PaymentID:     details.PaymentID,
		PaymentStatus: string(details.Status),
	})
	if err != nil {
		return PaymentSummary{}, err
	}

	s.logger(ctx, "payment.reconciled", map[string]any{
		"orderId":       order.ID,
		"paymentId":     details.PaymentID,
		"paymentStatus": string(details.Status),
		"orderStatus":   string(order.Status),
	})
	return paymentSummaryFromOrder(order), nil
}

func (s *paymentService) Refund(ctx context.Context, cmd RefundPaymentCommand) (PaymentSummary, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentSummary{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentSummary{}, err
	}
	if order.PaymentID == nil || *order.PaymentID == "" {
		return PaymentSummary{}, fmt.Errorf("%w: order %s has no recorded payment", ErrPaymentInvalidState, order.ID)
	}

	details, err := s.gateway.Refund(ctx, payments.PaymentContext{Currency: order.Currency}, payments.RefundRequest{
		PaymentID: *order.PaymentID,
		Reason:    strings.TrimSpace(cmd.Reason),
	})
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	order, err = s.orders.ApplyPaymentResult(ctx, ApplyPaymentResultCommand{
		OrderID:       order.ID,
		PaymentID:     details.PaymentID,
		PaymentStatus: string(details.Status),
		ActorID:       strings.TrimSpace(cmd.ActorID),
	})
	if err != nil {
		return PaymentSummary{}, err
	}

	s.logger(ctx, "payment.refunded", map[string]any{
		"orderId":   order.ID,
		"paymentId": details.PaymentID,
	})
	return paymentSummaryFromOrder(order), nil
}

func (s *paymentService) Status(ctx context.Context, orderID string) (PaymentSummary, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentSummary{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentSummary{}, err
	}
	return paymentSummaryFromOrder(order), nil
}

func paymentSummaryFromOrder(order Order) PaymentSummary {
	return PaymentSummary{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentID:     order.PaymentID,
		PaymentStatus: order.PaymentStatus,
	}
}
