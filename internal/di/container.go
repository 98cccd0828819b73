package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/payments"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/platform/config"
	"github.com/cuakstore/api/internal/platform/storage"
	"github.com/cuakstore/api/internal/repositories"
	"github.com/cuakstore/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Payments services.PaymentService
	Accounts services.AccountService
	Media    services.MediaService
	System   services.SystemService
}

// Infrastructure carries the externally constructed collaborators the
// services are wired onto. Fields left nil disable the dependent service.
type Infrastructure struct {
	TokenIssuer    *auth.TokenIssuer
	GoogleVerifier *auth.GoogleVerifier
	PaymentGateway *payments.Manager
	StorageSigner  *storage.Client
	StorageCopier  *storage.Copier
	Events         services.OrderEventPublisher
	BuildInfo      services.BuildInfo
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and shared infrastructure for
// runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Categories: reg.Categories(),
		Products:   reg.Products(),
		Clock:      time.Now,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     infra.Events,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if infra.PaymentGateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:  orderSvc,
			Gateway: infra.PaymentGateway,
			Config: services.PaymentServiceConfig{
				SuccessURL: cfg.Payments.SuccessURL,
				FailureURL: cfg.Payments.FailureURL,
				PendingURL: cfg.Payments.PendingURL,
			},
			Clock:  time.Now,
			Logger: infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if infra.TokenIssuer != nil {
		accountDeps := services.AccountServiceDeps{
			Users:     reg.Users(),
			Tokens:    infra.TokenIssuer,
			Bootstrap: bootstrapAccounts(cfg.Bootstrap),
			Clock:     time.Now,
			Logger:    infra.Logger,
		}
		if infra.GoogleVerifier != nil {
			accountDeps.Google = infra.GoogleVerifier
		}
		accountSvc, err := services.NewAccountService(accountDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build account service: %w", err)
		}
		svc.Accounts = accountSvc
	}

	if infra.StorageSigner != nil && infra.StorageCopier != nil {
		mediaSvc, err := services.NewMediaService(services.MediaServiceDeps{
			Products: reg.Products(),
			Signer:   infra.StorageSigner,
			Copier:   infra.StorageCopier,
			Config: services.MediaServiceConfig{
				Bucket:        cfg.Storage.MediaBucket,
				PublicBaseURL: cfg.Storage.PublicBaseURL,
			},
			Clock:  time.Now,
			Logger: infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build media service: %w", err)
		}
		svc.Media = mediaSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            infra.BuildInfo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// bootstrapAccounts derives the seed admin and owner accounts from
// configuration. A missing password triggers generation at seeding time.
func bootstrapAccounts(cfg config.BootstrapConfig) []services.BootstrapAccount {
	accounts := make([]services.BootstrapAccount, 0, 2)
	if cfg.AdminUsername != "" {
		accounts = append(accounts, services.BootstrapAccount{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
			Roles:    []domain.Role{domain.RoleUser, domain.RoleAdmin},
		})
	}
	if cfg.OwnerUsername != "" {
		accounts = append(accounts, services.BootstrapAccount{
			Username: cfg.OwnerUsername,
			Email:    cfg.OwnerEmail,
			Password: cfg.OwnerPassword,
			Roles:    []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleOwner},
		})
	}
	return accounts
}
