package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/services"
)

type stubCatalogService struct {
	createCategoryFunc func(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error)
	updateCategoryFunc func(ctx context.Context, cmd services.UpdateCategoryCommand) (services.Category, error)
	deleteCategoryFunc func(ctx context.Context, categoryID string) error
	getCategoryFunc    func(ctx context.Context, categoryID string) (services.Category, error)
	listCategoriesFunc func(ctx context.Context, filter services.CategoryListFilter) (domain.CursorPage[services.Category], error)
	createProductFunc  func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error)
	updateProductFunc  func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error)
	deleteProductFunc  func(ctx context.Context, productID string) error
	getProductFunc     func(ctx context.Context, productID string) (services.Product, error)
	listProductsFunc   func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
	if s.createCategoryFunc == nil {
		return services.Category{}, errors.New("create category not implemented")
	}
	return s.createCategoryFunc(ctx, cmd)
}

func (s *stubCatalogService) UpdateCategory(ctx context.Context, cmd services.UpdateCategoryCommand) (services.Category, error) {
	if s.updateCategoryFunc == nil {
		return services.Category{}, errors.New("update category not implemented")
	}
	return s.updateCategoryFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFunc == nil {
		return errors.New("delete category not implemented")
	}
	return s.deleteCategoryFunc(ctx, categoryID)
}

func (s *stubCatalogService) GetCategory(ctx context.Context, categoryID string) (services.Category, error) {
	if s.getCategoryFunc == nil {
		return services.Category{}, errors.New("get category not implemented")
	}
	return s.getCategoryFunc(ctx, categoryID)
}

func (s *stubCatalogService) ListCategories(ctx context.Context, filter services.CategoryListFilter) (domain.CursorPage[services.Category], error) {
	if s.listCategoriesFunc == nil {
		return domain.CursorPage[services.Category]{}, errors.New("list categories not implemented")
	}
	return s.listCategoriesFunc(ctx, filter)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createProductFunc == nil {
		return services.Product{}, errors.New("create product not implemented")
	}
	return s.createProductFunc(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateProductFunc == nil {
		return services.Product{}, errors.New("update product not implemented")
	}
	return s.updateProductFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFunc == nil {
		return errors.New("delete product not implemented")
	}
	return s.deleteProductFunc(ctx, productID)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFunc == nil {
		return services.Product{}, errors.New("get product not implemented")
	}
	return s.getProductFunc(ctx, productID)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFunc == nil {
		return domain.CursorPage[services.Product]{}, errors.New("list products not implemented")
	}
	return s.listProductsFunc(ctx, filter)
}

func ownerIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleUser, auth.RoleAdmin, auth.RoleOwner}}
}

func newCategoryRouter(catalog services.CatalogService) chi.Router {
	handler := NewCategoryHandlers(nil, catalog)
	router := chi.NewRouter()
	router.Route("/categories", handler.Routes)
	return router
}

func TestCategoryHandlersListIsPublic(t *testing.T) {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	service := &stubCatalogService{
		listCategoriesFunc: func(_ context.Context, filter services.CategoryListFilter) (domain.CursorPage[services.Category], error) {
			if filter.NameContains != "bath" {
				t.Fatalf("expected name filter bath, got %q", filter.NameContains)
			}
			return domain.CursorPage[services.Category]{
				Items: []services.Category{
					{ID: "cat_1", Name: "Bath Toys", CreatedAt: created},
				},
				NextPageToken: "tok_2",
			}, nil
		},
	}
	router := newCategoryRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/categories/?name=bath", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp categoryListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "Bath Toys" {
		t.Fatalf("unexpected items %#v", resp.Items)
	}
	if resp.NextPageToken != "tok_2" {
		t.Fatalf("expected next page token tok_2, got %q", resp.NextPageToken)
	}
}

func TestCategoryHandlersCreateRequiresOwner(t *testing.T) {
	router := newCategoryRouter(&stubCatalogService{})

	body := `{"name":"Bath Toys"}`

	t.Run("admin is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/categories/", strings.NewReader(body))
		req = withTestIdentity(req, adminIdentity("usr_admin"))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rr.Code)
		}
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/categories/", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rr.Code)
		}
	})
}

func TestCategoryHandlersCreateCategory(t *testing.T) {
	service := &stubCatalogService{
		createCategoryFunc: func(_ context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
			if cmd.Name != "Bath Toys" {
				t.Fatalf("expected name Bath Toys, got %q", cmd.Name)
			}
			if cmd.ActorID != "usr_owner" {
				t.Fatalf("expected actor usr_owner, got %q", cmd.ActorID)
			}
			return services.Category{ID: "cat_1", Name: cmd.Name}, nil
		},
	}
	router := newCategoryRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/categories/", strings.NewReader(`{"name":"Bath Toys"}`))
	req = withTestIdentity(req, ownerIdentity("usr_owner"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCategoryHandlersCreateDuplicateConflict(t *testing.T) {
	service := &stubCatalogService{
		createCategoryFunc: func(_ context.Context, _ services.CreateCategoryCommand) (services.Category, error) {
			return services.Category{}, services.ErrCatalogConflict
		},
	}
	router := newCategoryRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/categories/", strings.NewReader(`{"name":"BATH TOYS"}`))
	req = withTestIdentity(req, ownerIdentity("usr_owner"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCategoryHandlersDeleteCategory(t *testing.T) {
	deleted := ""
	service := &stubCatalogService{
		deleteCategoryFunc: func(_ context.Context, categoryID string) error {
			deleted = categoryID
			return nil
		},
	}
	router := newCategoryRouter(service)

	req := httptest.NewRequest(http.MethodDelete, "/categories/cat_1", nil)
	req = withTestIdentity(req, ownerIdentity("usr_owner"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if deleted != "cat_1" {
		t.Fatalf("expected delete of cat_1, got %q", deleted)
	}
}

func TestCategoryHandlersDeleteMissingCategory(t *testing.T) {
	service := &stubCatalogService{
		deleteCategoryFunc: func(_ context.Context, _ string) error {
			return services.ErrCatalogNotFound
		},
	}
	router := newCategoryRouter(service)

	req := httptest.NewRequest(http.MethodDelete, "/categories/cat_missing", nil)
	req = withTestIdentity(req, ownerIdentity("usr_owner"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
