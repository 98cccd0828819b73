package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/platform/httpx"
	"github.com/cuakstore/api/internal/services"
)

// CategoryHandlers exposes category read endpoints publicly and mutations to
// the shop owner.
type CategoryHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCategoryHandlers constructs a new CategoryHandlers instance.
func NewCategoryHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CategoryHandlers {
	return &CategoryHandlers{authn: authn, catalog: catalog}
}

// Routes registers the /categories endpoints.
func (h *CategoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{categoryID}", h.getCategory)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/", h.createCategory)
		protected.Patch("/{categoryID}", h.updateCategory)
		protected.Delete("/{categoryID}", h.deleteCategory)
	})
}

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type categoryListResponse struct {
	Items         []categoryPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func (h *CategoryHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	pagination, err := paginationFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListCategories(ctx, services.CategoryListFilter{
		NameContains: strings.TrimSpace(r.URL.Query().Get("name")),
		Pagination:   pagination,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(page.Items))
	for _, category := range page.Items {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CategoryHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categoryID := strings.TrimSpace(chi.URLParam(r, "categoryID"))
	category, err := h.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanMutateCatalog(identity) {
		writeForbidden(ctx, w)
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req categoryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.catalog.CreateCategory(ctx, services.CreateCategoryCommand{
		Name:        stringValue(req.Name),
		Description: stringValue(req.Description),
		ActorID:     identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanMutateCatalog(identity) {
		writeForbidden(ctx, w)
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req categoryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	category, err := h.catalog.UpdateCategory(ctx, services.UpdateCategoryCommand{
		CategoryID:  strings.TrimSpace(chi.URLParam(r, "categoryID")),
		Name:        req.Name,
		Description: req.Description,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *CategoryHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanMutateCatalog(identity) {
		writeForbidden(ctx, w)
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteCategory(ctx, strings.TrimSpace(chi.URLParam(r, "categoryID"))); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildCategoryPayload(category domain.Category) categoryPayload {
	return categoryPayload{
		ID:          strings.TrimSpace(category.ID),
		Name:        strings.TrimSpace(category.Name),
		Description: strings.TrimSpace(category.Description),
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
