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

// ProductHandlers exposes product search publicly and catalog mutations plus
// image management to the shop owner.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	media   services.MediaService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, media services.MediaService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog, media: media}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/", h.createProduct)
		protected.Patch("/{productID}", h.updateProduct)
		protected.Delete("/{productID}", h.deleteProduct)
		protected.Post("/{productID}/image:upload", h.issueImageUpload)
		protected.Post("/{productID}/image:attach", h.attachImage)
	})
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       *int64 `json:"price"`
	Currency    string `json:"currency"`
	CategoryID  string `json:"category_id"`
	ImageURL    string `json:"image_url"`
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Currency    *string `json:"currency"`
	CategoryID  *string `json:"category_id"`
	ImageURL    *string `json:"image_url"`
}

type imageUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type imageAttachRequest struct {
	UploadID string `json:"upload_id"`
	FileName string `json:"file_name"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	ImageURL    string `json:"image_url,omitempty"`
	CategoryID  string `json:"category_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type uploadTicketResponse struct {
	UploadID   string            `json:"upload_id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ObjectPath string            `json:"object_path"`
	ExpiresAt  string            `json:"expires_at"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pagination, err := paginationFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	priceFrom, err := parseInt64Param(query.Get("price_from"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price_from must be an integer amount in minor units", http.StatusBadRequest))
		return
	}
	priceTo, err := parseInt64Param(query.Get("price_to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price_to must be an integer amount in minor units", http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		NameContains: strings.TrimSpace(query.Get("name")),
		CategoryID:   strings.TrimSpace(query.Get("category_id")),
		PriceRange:   domain.RangeQuery[int64]{From: priceFrom, To: priceTo},
		SortBy:       strings.TrimSpace(query.Get("sort_by")),
		SortOrder:    domain.SortOrder(strings.TrimSpace(query.Get("sort_order"))),
		Pagination:   pagination,
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
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

	var req createProductRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Price == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Currency:    req.Currency,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
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

	var req updateProductRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productID")),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
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

	if err := h.catalog.DeleteProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID"))); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanMutateCatalog(identity) {
		writeForbidden(ctx, w)
		return
	}
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req imageUploadRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	ticket, err := h.media.IssueProductImageUpload(ctx, services.ProductImageUploadCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productID")),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeMediaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, uploadTicketResponse{
		UploadID:   ticket.UploadID,
		URL:        ticket.URL,
		Method:     ticket.Method,
		Headers:    ticket.Headers,
		ObjectPath: ticket.ObjectPath,
		ExpiresAt:  formatTime(ticket.ExpiresAt),
	})
}

func (h *ProductHandlers) attachImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !auth.CanMutateCatalog(identity) {
		writeForbidden(ctx, w)
		return
	}
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req imageAttachRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.media.AttachProductImage(ctx, services.AttachProductImageCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		UploadID:  req.UploadID,
		FileName:  req.FileName,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeMediaError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          strings.TrimSpace(product.ID),
		Name:        strings.TrimSpace(product.Name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(product.Currency)),
		ImageURL:    strings.TrimSpace(product.ImageURL),
		CategoryID:  strings.TrimSpace(product.CategoryID),
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

func writeMediaError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMediaInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMediaStorage):
		httpx.WriteError(ctx, w, httpx.NewError("storage_error", "object storage unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
