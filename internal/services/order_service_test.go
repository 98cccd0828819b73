package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/repositories"
)

type repoNotFoundError struct{ msg string }

func (e repoNotFoundError) Error() string       { return e.msg }
func (e repoNotFoundError) IsNotFound() bool    { return true }
func (e repoNotFoundError) IsConflict() bool    { return false }
func (e repoNotFoundError) IsUnavailable() bool { return false }

type repoConflictError struct{ msg string }

func (e repoConflictError) Error() string       { return e.msg }
func (e repoConflictError) IsNotFound() bool    { return false }
func (e repoConflictError) IsConflict() bool    { return true }
func (e repoConflictError) IsUnavailable() bool { return false }

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, repoNotFoundError{msg: "order not found"}
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubProductRepo struct {
	insertFn func(context.Context, domain.Product) error
	updateFn func(context.Context, domain.Product) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Product, error)
	listFn   func(context.Context, repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Delete(ctx context.Context, productID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, productID)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, repoNotFoundError{msg: "product not found"}
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type captureOrderEvents struct {
	events []OrderEventMessage
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEventMessage) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.events = append(c.events, event)
	return fmt.Sprintf("msg-%d", len(c.events)), nil
}

func productFixture(id string, price int64) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Classic Rubber Duck",
		Price:    price,
		Currency: "USD",
	}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, products *stubProductRepo, events *captureOrderEvents, now time.Time) OrderService {
	t.Helper()
	counter := int64(41)
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   orders,
		Products: products,
		Counters: &stubCounterRepo{
			nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
				if counterID != "orders" {
					t.Fatalf("unexpected counter id %s", counterID)
				}
				if step != 1 {
					t.Fatalf("unexpected step %d", step)
				}
				counter++
				return counter, nil
			},
		},
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "TESTULID" },
		Events:      events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestOrderServiceCreateSnapshotsPricesAndTotals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	var inserted domain.Order
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			if productID != "prod_duck" {
				return domain.Product{}, repoNotFoundError{msg: "product not found"}
			}
			return productFixture("prod_duck", 2500), nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, products, events, now)

	order, err := svc.Create(ctx, CreateOrderCommand{
		UserID:   "usr_1",
		Currency: "usd",
		Items:    []OrderItemInput{{ProductID: "prod_duck", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.ID != "ord_TESTULID" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.OrderNumber != "CS-2026-000042" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected one line item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.UnitPrice != 2500 || item.Quantity != 2 || item.Total != 5000 {
		t.Fatalf("unexpected line item %+v", item)
	}
	if order.Totals.Total != 5000 || order.Totals.Subtotal != 5000 {
		t.Fatalf("unexpected totals %+v", order.Totals)
	}
	if inserted.ID != order.ID {
		t.Fatalf("order was not persisted")
	}
	if len(events.events) != 1 || events.events[0].Event != orderEventCreated {
		t.Fatalf("expected created event, got %+v", events.events)
	}
}

func TestOrderServiceCreateMergesDuplicateProducts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	orders := &stubOrderRepo{}
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return productFixture(productID, 1000), nil
		},
	}
	svc := newTestOrderService(t, orders, products, &captureOrderEvents{}, now)

	order, err := svc.Create(ctx, CreateOrderCommand{
		UserID: "usr_1",
		Items: []OrderItemInput{
			{ProductID: "prod_duck", Quantity: 1},
			{ProductID: "prod_duck", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected merged line item, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 3 || order.Totals.Total != 3000 {
		t.Fatalf("unexpected merge result %+v", order)
	}
}

func TestOrderServiceCreateUnknownProduct(t *testing.T) {
	ctx := context.Background()
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{}, &captureOrderEvents{}, time.Now())

	_, err := svc.Create(ctx, CreateOrderCommand{
		UserID: "usr_1",
		Items:  []OrderItemInput{{ProductID: "prod_missing", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceCreateRejectsUnpricedProduct(t *testing.T) {
	ctx := context.Background()
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return productFixture(productID, 0), nil
		},
	}
	svc := newTestOrderService(t, &stubOrderRepo{}, products, &captureOrderEvents{}, time.Now())

	_, err := svc.Create(ctx, CreateOrderCommand{
		UserID: "usr_1",
		Items:  []OrderItemInput{{ProductID: "prod_free", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceItemRoundTripTotals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	state := domain.Order{
		ID:          "ord_1",
		OrderNumber: "CS-2026-000001",
		UserID:      "usr_1",
		Status:      domain.OrderStatusPending,
		Currency:    "USD",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != state.ID {
				return domain.Order{}, repoNotFoundError{msg: "order not found"}
			}
			return state, nil
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			state = order
			return nil
		},
	}
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return productFixture(productID, 3000), nil
		},
	}
	svc := newTestOrderService(t, orders, products, &captureOrderEvents{}, now)

	if state.Totals.Total != 0 {
		t.Fatalf("expected empty order to total 0")
	}

	order, err := svc.AddItem(ctx, AddOrderItemCommand{OrderID: "ord_1", ProductID: "prod_duck", Quantity: 1})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if order.Totals.Total != 3000 {
		t.Fatalf("expected total 3000 after add, got %d", order.Totals.Total)
	}

	order, err = svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: "ord_1", ProductID: "prod_duck"})
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if order.Totals.Total != 0 || len(order.Items) != 0 {
		t.Fatalf("expected empty order after remove, got %+v", order)
	}
}

func TestOrderServiceAddItemRejectedOutsidePending(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusPaid}, nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &captureOrderEvents{}, time.Now())

	_, err := svc.AddItem(ctx, AddOrderItemCommand{OrderID: "ord_1", ProductID: "prod_duck", Quantity: 1})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOrderServiceRemoveMissingItem(t *testing.T) {
	ctx := context.Background()
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}, nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &captureOrderEvents{}, time.Now())

	_, err := svc.RemoveItem(ctx, RemoveOrderItemCommand{OrderID: "ord_1", ProductID: "prod_duck"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceTransitionStatus(t *testing.T) {
	now := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		wantErr error
	}{
		{name: "pending to paid", from: domain.OrderStatusPending, to: domain.OrderStatusPaid},
		{name: "paid to processing", from: domain.OrderStatusPaid, to: domain.OrderStatusProcessing},
		{name: "processing to shipped", from: domain.OrderStatusProcessing, to: domain.OrderStatusShipped},
		{name: "shipped to delivered", from: domain.OrderStatusShipped, to: domain.OrderStatusDelivered},
		{name: "skip ahead paid to delivered", from: domain.OrderStatusPaid, to: domain.OrderStatusDelivered},
		{name: "cancel while processing", from: domain.OrderStatusProcessing, to: domain.OrderStatusCancelled},
		{name: "refund after shipping", from: domain.OrderStatusShipped, to: domain.OrderStatusRefunded},
		{name: "pending cannot refund", from: domain.OrderStatusPending, to: domain.OrderStatusRefunded, wantErr: ErrOrderInvalidState},
		{name: "delivered is terminal", from: domain.OrderStatusDelivered, to: domain.OrderStatusPaid, wantErr: ErrOrderInvalidState},
		{name: "cancelled is terminal", from: domain.OrderStatusCancelled, to: domain.OrderStatusPaid, wantErr: ErrOrderInvalidState},
		{name: "refunded is terminal", from: domain.OrderStatusRefunded, to: domain.OrderStatusShipped, wantErr: ErrOrderInvalidState},
		{name: "no walking back", from: domain.OrderStatusShipped, to: domain.OrderStatusProcessing, wantErr: ErrOrderInvalidState},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderRepo{
				findFn: func(_ context.Context, _ string) (domain.Order, error) {
					return domain.Order{ID: "ord_1", OrderNumber: "CS-2026-000001", Status: tc.from}, nil
				},
			}
			events := &captureOrderEvents{}
			svc := newTestOrderService(t, orders, &stubProductRepo{}, events, now)

			order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "ord_1",
				TargetStatus: tc.to,
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if len(events.events) != 0 {
					t.Fatalf("no event expected on rejected transition")
				}
				return
			}
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if order.Status != tc.to {
				t.Fatalf("expected status %s, got %s", tc.to, order.Status)
			}
			if len(events.events) != 1 || events.events[0].Event != orderEventStatusChanged {
				t.Fatalf("expected status changed event, got %+v", events.events)
			}
			if events.events[0].PreviousStatus != string(tc.from) {
				t.Fatalf("expected previous status %s, got %s", tc.from, events.events[0].PreviousStatus)
			}
		})
	}
}

func TestOrderServiceTransitionSameStatusIsNoop(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusPaid}, nil
		},
		updateFn: func(_ context.Context, _ domain.Order) error {
			return errors.New("update must not be called")
		},
	}
	events := &captureOrderEvents{}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, events, time.Now())

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPaid,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if len(events.events) != 0 {
		t.Fatalf("no event expected for same-status transition")
	}
}

func TestOrderServiceTransitionStampsTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	var updated domain.Order
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, _ string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}, nil
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			updated = order
			return nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &captureOrderEvents{}, now)

	if _, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPaid,
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.PaidAt == nil || !updated.PaidAt.Equal(now) {
		t.Fatalf("expected paidAt %v, got %v", now, updated.PaidAt)
	}
}

func TestOrderServiceApplyPaymentResult(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

	t.Run("approved marks order paid", func(t *testing.T) {
		state := domain.Order{ID: "ord_1", OrderNumber: "CS-2026-000001", Status: domain.OrderStatusPending}
		orders := &stubOrderRepo{
			findFn: func(_ context.Context, _ string) (domain.Order, error) { return state, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				state = order
				return nil
			},
		}
		events := &captureOrderEvents{}
		svc := newTestOrderService(t, orders, &stubProductRepo{}, events, now)

		order, err := svc.ApplyPaymentResult(context.Background(), ApplyPaymentResultCommand{
			OrderID:       "ord_1",
			PaymentID:     "pi_123",
			PaymentStatus: "approved",
		})
		if err != nil {
			t.Fatalf("apply payment: %v", err)
		}
		if order.Status != domain.OrderStatusPaid {
			t.Fatalf("expected paid, got %s", order.Status)
		}
		if order.PaymentID == nil || *order.PaymentID != "pi_123" {
			t.Fatalf("payment id not recorded: %+v", order.PaymentID)
		}
		if order.PaidAt == nil {
			t.Fatalf("paidAt not stamped")
		}
		if len(events.events) != 1 {
			t.Fatalf("expected one status event, got %d", len(events.events))
		}
	})

	t.Run("rejected cancels order", func(t *testing.T) {
		state := domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}
		orders := &stubOrderRepo{
			findFn: func(_ context.Context, _ string) (domain.Order, error) { return state, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				state = order
				return nil
			},
		}
		svc := newTestOrderService(t, orders, &stubProductRepo{}, &captureOrderEvents{}, now)

		order, err := svc.ApplyPaymentResult(context.Background(), ApplyPaymentResultCommand{
			OrderID:       "ord_1",
			PaymentID:     "pi_123",
			PaymentStatus: "rejected",
		})
		if err != nil {
			t.Fatalf("apply payment: %v", err)
		}
		if order.Status != domain.OrderStatusCancelled {
			t.Fatalf("expected cancelled, got %s", order.Status)
		}
		if order.CancelledAt == nil {
			t.Fatalf("cancelledAt not stamped")
		}
	})

	t.Run("redelivered webhook is idempotent", func(t *testing.T) {
		state := domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}
		updates := 0
		orders := &stubOrderRepo{
			findFn: func(_ context.Context, _ string) (domain.Order, error) { return state, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				state = order
				updates++
				return nil
			},
		}
		events := &captureOrderEvents{}
		svc := newTestOrderService(t, orders, &stubProductRepo{}, events, now)

		cmd := ApplyPaymentResultCommand{OrderID: "ord_1", PaymentID: "pi_123", PaymentStatus: "approved"}
		first, err := svc.ApplyPaymentResult(context.Background(), cmd)
		if err != nil {
			t.Fatalf("first apply: %v", err)
		}
		second, err := svc.ApplyPaymentResult(context.Background(), cmd)
		if err != nil {
			t.Fatalf("second apply: %v", err)
		}
		if first.Status != second.Status {
			t.Fatalf("status changed on redelivery: %s vs %s", first.Status, second.Status)
		}
		if updates != 1 {
			t.Fatalf("expected a single persisted update, got %d", updates)
		}
		if len(events.events) != 1 {
			t.Fatalf("expected a single status event, got %d", len(events.events))
		}
	})

	t.Run("late approval overrides a cancelled order", func(t *testing.T) {
		cancelledAt := now.Add(-time.Hour)
		state := domain.Order{ID: "ord_1", Status: domain.OrderStatusCancelled, CancelledAt: &cancelledAt}
		orders := &stubOrderRepo{
			findFn: func(_ context.Context, _ string) (domain.Order, error) { return state, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				state = order
				return nil
			},
		}
		events := &captureOrderEvents{}
		svc := newTestOrderService(t, orders, &stubProductRepo{}, events, now)

		order, err := svc.ApplyPaymentResult(context.Background(), ApplyPaymentResultCommand{
			OrderID:       "ord_1",
			PaymentID:     "pi_123",
			PaymentStatus: "approved",
		})
		if err != nil {
			t.Fatalf("apply payment: %v", err)
		}
		if order.Status != domain.OrderStatusPaid {
			t.Fatalf("expected paid, got %s", order.Status)
		}
		if order.PaymentID == nil || *order.PaymentID != "pi_123" {
			t.Fatalf("payment id not recorded: %+v", order.PaymentID)
		}
		if order.PaidAt == nil {
			t.Fatalf("paidAt not stamped")
		}
		if len(events.events) != 1 || events.events[0].PreviousStatus != string(domain.OrderStatusCancelled) {
			t.Fatalf("expected cancelled->paid status event, got %+v", events.events)
		}
	})

	t.Run("pending status records payment without transition", func(t *testing.T) {
		state := domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}
		orders := &stubOrderRepo{
			findFn: func(_ context.Context, _ string) (domain.Order, error) { return state, nil },
			updateFn: func(_ context.Context, order domain.Order) error {
				state = order
				return nil
			},
		}
		svc := newTestOrderService(t, orders, &stubProductRepo{}, &captureOrderEvents{}, now)

		order, err := svc.ApplyPaymentResult(context.Background(), ApplyPaymentResultCommand{
			OrderID:       "ord_1",
			PaymentID:     "pi_123",
			PaymentStatus: "pending",
		})
		if err != nil {
			t.Fatalf("apply payment: %v", err)
		}
		if order.Status != domain.OrderStatusPending {
			t.Fatalf("expected status unchanged, got %s", order.Status)
		}
		if order.PaymentStatus == nil || *order.PaymentStatus != "pending" {
			t.Fatalf("payment status not recorded: %+v", order.PaymentStatus)
		}
	})
}

func TestOrderServiceDeleteMissingOrder(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, &stubProductRepo{}, &captureOrderEvents{}, time.Now())

	err := svc.Delete(context.Background(), DeleteOrderCommand{OrderID: "ord_missing"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailOperation(t *testing.T) {
	now := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	products := &stubProductRepo{
		findFn: func(_ context.Context, productID string) (domain.Product, error) {
			return productFixture(productID, 2500), nil
		},
	}
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      &stubOrderRepo{},
		Products:    products,
		Counters:    &stubCounterRepo{},
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "TESTULID" },
		Events:      &captureOrderEvents{err: errors.New("broker down")},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Items:  []OrderItemInput{{ProductID: "prod_duck", Quantity: 1}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	found := false
	for _, event := range logged {
		if event == "order.event.publish.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}
