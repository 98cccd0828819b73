package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventItemsChanged  = "order.items_changed"

	orderIDPrefix = "ord_"

	maxOrderItemQuantity = 1000
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order (or one of its items) could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition or a mutation
	// attempted outside the pending state.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates duplicate writes or concurrency conflicts.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions enumerates the statuses reachable from each state.
// Forward jumps (e.g. pending straight to shipped) are allowed so that
// back-office corrections do not require walking every intermediate state.
// Terminal states have no outbound edges.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusPaid,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPaid: {
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
	domain.OrderStatusRefunded:  {},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	now := s.now()

	items, currency, err := s.snapshotItems(ctx, cmd.Items, cmd.Currency)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        orderIDPrefix + s.newID(),
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		Currency:  currency,
		Items:     items,
		Totals:    computeOrderTotals(items),
		CreatedAt: now,
		UpdatedAt: now,
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Event:       orderEventCreated,
		Status:      string(order.Status),
		ActorID:     strings.TrimSpace(cmd.ActorID),
		OccurredAt:  now,
	})

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"userId":      order.UserID,
		"total":       order.Totals.Total,
	})
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	for i, status := range filter.Status {
		filter.Status[i] = strings.ToLower(strings.TrimSpace(status))
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if productID == "" {
		return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxOrderItemQuantity {
		return Order{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrOrderInvalidInput, maxOrderItemQuantity)
	}

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: items can only change while the order is %s", ErrOrderInvalidState, domain.OrderStatusPending)
		}

		// Unit price and name are captured from the catalog now and never
		// refreshed afterwards.
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return fmt.Errorf("%w: product %s", ErrOrderNotFound, productID)
			}
			return s.mapRepositoryError(err)
		}
		if product.Price <= 0 {
			return fmt.Errorf("%w: product %s has no sellable price", ErrOrderInvalidInput, productID)
		}

		merged := false
		for i := range order.Items {
			if order.Items[i].ProductID == productID {
				order.Items[i].Quantity += cmd.Quantity
				order.Items[i].Total = order.Items[i].UnitPrice * int64(order.Items[i].Quantity)
				merged = true
				break
			}
		}
		if !merged {
			order.Items = append(order.Items, OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  cmd.Quantity,
				UnitPrice: product.Price,
				Total:     product.Price * int64(cmd.Quantity),
			})
		}

		order.Totals = computeOrderTotals(order.Items)
		order.UpdatedAt = s.now()

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Event:       orderEventItemsChanged,
		Status:      string(order.Status),
		ActorID:     strings.TrimSpace(cmd.ActorID),
		OccurredAt:  order.UpdatedAt,
	})
	return order, nil
}

func (s *orderService) RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if productID == "" {
		return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: items can only change while the order is %s", ErrOrderInvalidState, domain.OrderStatusPending)
		}

		index := -1
		for i := range order.Items {
			if order.Items[i].ProductID == productID {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("%w: product %s is not part of order %s", ErrOrderNotFound, productID, orderID)
		}
		order.Items = slices.Delete(order.Items, index, index+1)

		order.Totals = computeOrderTotals(order.Items)
		order.UpdatedAt = s.now()

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Event:       orderEventItemsChanged,
		Status:      string(order.Status),
		ActorID:     strings.TrimSpace(cmd.ActorID),
		OccurredAt:  order.UpdatedAt,
	})
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, err := parseOrderStatus(string(cmd.TargetStatus))
	if err != nil {
		return Order{}, err
	}

	var (
		order    Order
		previous domain.OrderStatus
		changed  bool
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		changed = order.Status != target
		if !changed {
			return nil
		}

		previous, err = s.applyStatusTransition(&order, target, s.now())
		if err != nil {
			return err
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return order, nil
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Event:          orderEventStatusChanged,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     order.UpdatedAt,
	})

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"reason":  strings.TrimSpace(cmd.Reason),
	})
	return order, nil
}

func (s *orderService) ApplyPaymentResult(ctx context.Context, cmd ApplyPaymentResultCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	paymentStatus := strings.ToLower(strings.TrimSpace(cmd.PaymentStatus))
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if paymentID == "" {
		return Order{}, fmt.Errorf("%w: payment id is required", ErrOrderInvalidInput)
	}
	if paymentStatus == "" {
		return Order{}, fmt.Errorf("%w: payment status is required", ErrOrderInvalidInput)
	}

	var (
		order         Order
		previous      domain.OrderStatus
		now           time.Time
		statusChanged bool
		redelivered   bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		statusChanged = false
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		// Webhooks are redelivered; the same payment outcome applied twice
		// must succeed without touching the order again.
		redelivered = order.PaymentID != nil && *order.PaymentID == paymentID &&
			order.PaymentStatus != nil && *order.PaymentStatus == paymentStatus
		if redelivered {
			return nil
		}

		target, hasTarget := orderStatusForPayment(paymentStatus)

		// Gateway results are authoritative: they set the order status
		// directly rather than going through the operator transition table,
		// so a late approval still lands as paid even on an
		// already-cancelled order.
		now = s.now()
		if hasTarget && order.Status != target {
			previous = order.Status
			order.Status = target
			updateLifecycleTimestamps(&order, target, now)
			statusChanged = true
		}

		order.PaymentID = valuePtr(paymentID)
		order.PaymentStatus = valuePtr(paymentStatus)
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if redelivered {
		return order, nil
	}

	if statusChanged {
		s.publishEvent(ctx, OrderEventMessage{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			Event:          orderEventStatusChanged,
			Status:         string(order.Status),
			PreviousStatus: string(previous),
			ActorID:        strings.TrimSpace(cmd.ActorID),
			OccurredAt:     now,
		})
	}

	s.logger(ctx, "order.payment.applied", map[string]any{
		"orderId":       order.ID,
		"paymentId":     paymentID,
		"paymentStatus": paymentStatus,
		"status":        string(order.Status),
	})
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.deleted", map[string]any{
		"orderId": orderID,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

// applyStatusTransition validates and applies the status change, stamping the
// lifecycle timestamp for the target state. It returns the previous status.
func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) (domain.OrderStatus, error) {
	current := order.Status
	if !canTransition(current, target) {
		return "", fmt.Errorf("%w: cannot transition from %s to %s", ErrOrderInvalidState, current, target)
	}
	order.Status = target
	order.UpdatedAt = now
	updateLifecycleTimestamps(order, target, now)
	return current, nil
}

func updateLifecycleTimestamps(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	case domain.OrderStatusRefunded:
		if order.RefundedAt == nil {
			order.RefundedAt = &now
		}
	}
}

func (s *orderService) snapshotItems(ctx context.Context, inputs []OrderItemInput, currency string) ([]OrderItem, string, error) {
	currency = normalizeCurrency(currency)
	items := make([]OrderItem, 0, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, "", fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if input.Quantity < 1 || input.Quantity > maxOrderItemQuantity {
			return nil, "", fmt.Errorf("%w: item quantity must be between 1 and %d", ErrOrderInvalidInput, maxOrderItemQuantity)
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return nil, "", fmt.Errorf("%w: product %s", ErrOrderNotFound, productID)
			}
			return nil, "", s.mapRepositoryError(err)
		}
		if product.Price <= 0 {
			return nil, "", fmt.Errorf("%w: product %s has no sellable price", ErrOrderInvalidInput, productID)
		}

		merged := false
		for i := range items {
			if items[i].ProductID == product.ID {
				items[i].Quantity += input.Quantity
				items[i].Total = items[i].UnitPrice * int64(items[i].Quantity)
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		items = append(items, OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  input.Quantity,
			UnitPrice: product.Price,
			Total:     product.Price * int64(input.Quantity),
		})
	}
	return items, currency, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CS-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"event":  event.Event,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func computeOrderTotals(items []OrderItem) OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return OrderTotals{
		Subtotal: subtotal,
		Total:    subtotal,
	}
}

// orderStatusForPayment maps a normalised provider payment status to the
// order status it implies. Pending payment statuses imply no change.
func orderStatusForPayment(paymentStatus string) (domain.OrderStatus, bool) {
	switch paymentStatus {
	case "approved", "succeeded":
		return domain.OrderStatusPaid, true
	case "rejected", "failed", "canceled", "cancelled":
		return domain.OrderStatusCancelled, true
	case "refunded":
		return domain.OrderStatusRefunded, true
	default:
		return "", false
	}
}

func parseOrderStatus(value string) (domain.OrderStatus, error) {
	switch status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, value)
	}
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
