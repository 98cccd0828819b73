package repositories

import (
	"context"
	"time"

	domain "github.com/cuakstore/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Categories() CategoryRepository
	Products() ProductRepository
	Orders() OrderRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CategoryRepository persists catalog categories; names are unique ignoring case.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	// FindByNormalizedName resolves a category by its case-folded name. Should
	// return a RepositoryError with IsNotFound when no category matches.
	FindByNormalizedName(ctx context.Context, normalized string) (domain.Category, error)
	List(ctx context.Context, filter CategoryListFilter) (domain.CursorPage[domain.Category], error)
}

// ProductRepository persists catalog products and supports search filters.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// OrderRepository persists order aggregates and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// UserRepository stores account credentials and role assignments.
type UserRepository interface {
	Insert(ctx context.Context, account domain.UserAccount) error
	Update(ctx context.Context, account domain.UserAccount) error
	FindByID(ctx context.Context, userID string) (domain.UserAccount, error)
	FindByUsername(ctx context.Context, username string) (domain.UserAccount, error)
	FindByEmail(ctx context.Context, email string) (domain.UserAccount, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type CategoryListFilter struct {
	// NameContains matches case-insensitively against the category name.
	NameContains string
	Pagination   domain.Pagination
}

type ProductListFilter struct {
	// NameContains matches case-insensitively against the product name.
	NameContains string
	CategoryID   string
	PriceRange   domain.RangeQuery[int64]
	SortBy       string
	SortOrder    domain.SortOrder
	Pagination   domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
