package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Category groups products under a unique, case-insensitively distinct name.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a catalog entry; prices are stored in the smallest currency unit.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       int64
	Currency    string
	ImageURL    string
	CategoryID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment was confirmed by the provider.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates a confirmed payment was returned.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order captures the order aggregate: header, lifecycle stamps, line items and
// the payment snapshot written back during reconciliation.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Status        OrderStatus
	Currency      string
	Totals        OrderTotals
	Items         []OrderItem
	PaymentID     *string
	PaymentStatus *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	RefundedAt    *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Total    int64
}

// OrderItem snapshots a product at the moment it was added to the order.
// UnitPrice never changes after capture, even if the catalog price moves.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Role enumerates access levels recognised by the policy layer.
type Role string

const (
	// RoleUser is the default role for self-registered accounts.
	RoleUser Role = "user"
	// RoleAdmin may manage orders across users.
	RoleAdmin Role = "admin"
	// RoleOwner may additionally mutate the catalog.
	RoleOwner Role = "owner"
)

// UserAccount stores credentials and role assignments for API principals.
type UserAccount struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	GoogleSub    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the account carries the given role.
func (u UserAccount) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PaymentIntent is the provider-side checkout reference returned to clients.
type PaymentIntent struct {
	OrderID      string
	PreferenceID string
	RedirectURL  string
	SuccessURL   string
	FailureURL   string
	CreatedAt    time.Time
}

// PaymentSummary reports the payment state recorded on an order.
type PaymentSummary struct {
	OrderID       string
	Status        OrderStatus
	PaymentID     *string
	PaymentStatus *string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
