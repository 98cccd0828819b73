package services

import (
	"context"
	"time"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Category           = domain.Category
	Product            = domain.Product
	Order              = domain.Order
	OrderTotals        = domain.OrderTotals
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Role               = domain.Role
	UserAccount        = domain.UserAccount
	PaymentIntent      = domain.PaymentIntent
	PaymentSummary     = domain.PaymentSummary
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages categories and products for storefront and admin surfaces.
type CatalogService interface {
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	ListCategories(ctx context.Context, filter CategoryListFilter) (domain.CursorPage[Category], error)

	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// OrderService encapsulates the order aggregate: creation with price snapshots,
// item mutation while pending, lifecycle transitions and reconciliation writes.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	AddItem(ctx context.Context, cmd AddOrderItemCommand) (Order, error)
	RemoveItem(ctx context.Context, cmd RemoveOrderItemCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	ApplyPaymentResult(ctx context.Context, cmd ApplyPaymentResultCommand) (Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
}

// PaymentService creates provider checkout intents and reconciles provider
// payment state back onto orders.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	Reconcile(ctx context.Context, cmd ReconcilePaymentCommand) (PaymentSummary, error)
	Refund(ctx context.Context, cmd RefundPaymentCommand) (PaymentSummary, error)
	Status(ctx context.Context, orderID string) (PaymentSummary, error)
}

// AccountService manages registration, credential and Google sign-in, and the
// bootstrap admin/owner accounts.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterAccountCommand) (AuthSession, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	LoginWithGoogle(ctx context.Context, cmd GoogleLoginCommand) (AuthSession, error)
	GetAccount(ctx context.Context, userID string) (UserAccount, error)
	EnsureBootstrapAccounts(ctx context.Context) error
}

// MediaService issues signed upload URLs for catalog imagery and attaches
// uploaded objects to products.
type MediaService interface {
	IssueProductImageUpload(ctx context.Context, cmd ProductImageUploadCommand) (ProductImageUploadTicket, error)
	AttachProductImage(ctx context.Context, cmd AttachProductImageCommand) (Product, error)
}

// SystemService aggregates utility endpoints (health checks, build info).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload published when an order is created or
// changes status.
type OrderEventMessage struct {
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	Event          string    `json:"event"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Command and DTO definitions ------------------------------------------------

type CategoryListFilter = repositories.CategoryListFilter

type ProductListFilter = repositories.ProductListFilter

type OrderListFilter = repositories.OrderListFilter

type CreateCategoryCommand struct {
	Name        string
	Description string
	ActorID     string
}

type UpdateCategoryCommand struct {
	CategoryID  string
	Name        *string
	Description *string
	ActorID     string
}

type CreateProductCommand struct {
	Name        string
	Description string
	Price       int64
	Currency    string
	CategoryID  string
	ImageURL    string
	ActorID     string
}

type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Price       *int64
	Currency    *string
	CategoryID  *string
	ImageURL    *string
	ActorID     string
}

type CreateOrderCommand struct {
	UserID   string
	Currency string
	Items    []OrderItemInput
	ActorID  string
}

// OrderItemInput references a catalog product; the unit price is snapshotted
// from the catalog at the moment the item is added.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

type AddOrderItemCommand struct {
	OrderID   string
	ProductID string
	Quantity  int
	ActorID   string
}

type RemoveOrderItemCommand struct {
	OrderID   string
	ProductID string
	ActorID   string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Reason       string
}

// ApplyPaymentResultCommand writes the reconciled provider outcome onto the
// order. PaymentStatus carries the normalised provider status.
type ApplyPaymentResultCommand struct {
	OrderID       string
	PaymentID     string
	PaymentStatus string
	ActorID       string
}

type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

type CreatePaymentIntentCommand struct {
	OrderID string
	ActorID string
}

type ReconcilePaymentCommand struct {
	PaymentID string
}

type RefundPaymentCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

type RegisterAccountCommand struct {
	Username string
	Email    string
	Password string
}

type LoginCommand struct {
	Username string
	Password string
}

type GoogleLoginCommand struct {
	IDToken string
}

// AuthSession is the API token handed to a signed-in principal.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
	Account   UserAccount
}

type ProductImageUploadCommand struct {
	ProductID   string
	FileName    string
	ContentType string
	SizeBytes   int64
	ActorID     string
}

// ProductImageUploadTicket describes a signed PUT the client performs against
// the staging path before attaching the image.
type ProductImageUploadTicket struct {
	UploadID   string
	URL        string
	Method     string
	Headers    map[string]string
	ObjectPath string
	ExpiresAt  time.Time
}

type AttachProductImageCommand struct {
	ProductID string
	UploadID  string
	FileName  string
	ActorID   string
}
