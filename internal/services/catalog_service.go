package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/repositories"
)

const (
	categoryIDPrefix = "cat_"
	productIDPrefix  = "prod_"

	defaultProductSortField = "name"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested category or product does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a uniqueness violation, e.g. a duplicate category name.
	ErrCatalogConflict = errors.New("catalog service: conflict")
	// ErrCatalogUnavailable indicates the persistence layer could not serve the request.
	ErrCatalogUnavailable = errors.New("catalog service: repository unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Categories  repositories.CategoryRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	categories repositories.CategoryRepository
	products   repositories.ProductRepository
	clock      func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		categories: deps.Categories,
		products:   deps.Products,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}

	if err := s.ensureCategoryNameAvailable(ctx, name, ""); err != nil {
		return Category{}, err
	}

	now := s.clock()
	category := domain.Category{
		ID:          categoryIDPrefix + s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}

	s.logger(ctx, "catalog.category.created", map[string]any{
		"categoryId": category.ID,
		"name":       category.Name,
		"actorId":    strings.TrimSpace(cmd.ActorID),
	})
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}

	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: category name cannot be empty", ErrCatalogInvalidInput)
		}
		if !strings.EqualFold(name, category.Name) {
			if err := s.ensureCategoryNameAvailable(ctx, name, categoryID); err != nil {
				return Category{}, err
			}
		}
		category.Name = name
	}
	if cmd.Description != nil {
		category.Description = strings.TrimSpace(*cmd.Description)
	}
	category.UpdatedAt = s.clock()

	if err := s.categories.Update(ctx, category); err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID})
	return nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	return category, nil
}

func (s *catalogService) ListCategories(ctx context.Context, filter CategoryListFilter) (domain.CursorPage[Category], error) {
	filter.NameContains = strings.TrimSpace(filter.NameContains)
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	page, err := s.categories.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Category]{}, mapCatalogRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: product price must be positive", ErrCatalogInvalidInput)
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Product{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		if isRepositoryNotFound(err) {
			return Product{}, fmt.Errorf("%w: category %s does not exist", ErrCatalogInvalidInput, categoryID)
		}
		return Product{}, mapCatalogRepositoryError(err)
	}

	now := s.clock()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		Currency:    normalizeCurrency(cmd.Currency),
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		CategoryID:  categoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{
		"productId":  product.ID,
		"name":       product.Name,
		"price":      product.Price,
		"categoryId": product.CategoryID,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: product name cannot be empty", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: product price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Currency != nil {
		product.Currency = normalizeCurrency(*cmd.Currency)
	}
	if cmd.CategoryID != nil {
		categoryID := strings.TrimSpace(*cmd.CategoryID)
		if categoryID == "" {
			return Product{}, fmt.Errorf("%w: category id cannot be empty", ErrCatalogInvalidInput)
		}
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if isRepositoryNotFound(err) {
				return Product{}, fmt.Errorf("%w: category %s does not exist", ErrCatalogInvalidInput, categoryID)
			}
			return Product{}, mapCatalogRepositoryError(err)
		}
		product.CategoryID = categoryID
	}
	if cmd.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*cmd.ImageURL)
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapCatalogRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	filter.NameContains = strings.TrimSpace(filter.NameContains)
	filter.CategoryID = strings.TrimSpace(filter.CategoryID)
	filter.Pagination.PageToken = strings.TrimSpace(filter.Pagination.PageToken)
	filter.SortBy = normalizeProductSort(filter.SortBy)
	filter.SortOrder = normalizeSortOrder(filter.SortOrder)
	if from, to := filter.PriceRange.From, filter.PriceRange.To; from != nil && to != nil && *from > *to {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: price range lower bound exceeds upper bound", ErrCatalogInvalidInput)
	}
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, mapCatalogRepositoryError(err)
	}
	return page, nil
}

// ensureCategoryNameAvailable enforces case-insensitive uniqueness of category
// names. excludeID skips the category being renamed onto its own name.
func (s *catalogService) ensureCategoryNameAvailable(ctx context.Context, name, excludeID string) error {
	existing, err := s.categories.FindByNormalizedName(ctx, strings.ToLower(name))
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return mapCatalogRepositoryError(err)
	}
	if existing.ID == excludeID {
		return nil
	}
	return fmt.Errorf("%w: category name %q already exists", ErrCatalogConflict, name)
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCatalogNotFound, err.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCatalogConflict, err.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrCatalogUnavailable, err.Error())
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}

func normalizeProductSort(sortBy string) string {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "price":
		return "price"
	case "", defaultProductSortField:
		return defaultProductSortField
	default:
		return defaultProductSortField
	}
}

func normalizeSortOrder(order domain.SortOrder) domain.SortOrder {
	switch order {
	case domain.SortAsc, domain.SortDesc:
		return order
	default:
		return domain.SortAsc
	}
}
