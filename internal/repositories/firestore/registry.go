package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/cuakstore/api/internal/platform/firestore"
	"github.com/cuakstore/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider   *pfirestore.Provider
	categories *CategoryRepository
	products   *ProductRepository
	orders     *OrderRepository
	users      *UserRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires the Firestore repositories on a shared provider. The
// health repository is optional and may be set later via WithHealth.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	categories, err := NewCategoryRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		categories: categories,
		products:   products,
		orders:     orders,
		users:      users,
		counters:   counters,
	}, nil
}

// WithHealth attaches a health repository to the registry.
func (r *Registry) WithHealth(health repositories.HealthRepository) *Registry {
	if r != nil {
		r.health = health
	}
	return r
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Users() repositories.UserRepository          { return r.users }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// RunInTx executes fn within a Firestore transaction. The transaction is
// carried on the context so repository reads and writes made inside fn
// participate in it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTransaction(ctx, tx))
	})
}
