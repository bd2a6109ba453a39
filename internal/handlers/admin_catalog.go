package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// AdminCatalogHandlers exposes category and embedded product editing for the dashboard.
type AdminCatalogHandlers struct {
	catalog     services.CatalogService
	products    services.ProductService
	idempotency func(http.Handler) http.Handler
}

// AdminCatalogOption customises AdminCatalogHandlers.
type AdminCatalogOption func(*AdminCatalogHandlers)

// WithAdminCatalogIdempotency guards the create endpoints with the given middleware.
func WithAdminCatalogIdempotency(mw func(http.Handler) http.Handler) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.idempotency = mw
	}
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(catalog services.CatalogService, products services.ProductService, opts ...AdminCatalogOption) *AdminCatalogHandlers {
	h := &AdminCatalogHandlers{catalog: catalog, products: products}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := r
	if h.idempotency != nil {
		create = r.With(h.idempotency)
	}
	r.Get("/categories", h.listCategories)
	create.Post("/categories", h.createCategory)
	r.Get("/categories/{categoryId}", h.getCategory)
	r.Patch("/categories/{categoryId}", h.updateCategory)
	r.Put("/categories/{categoryId}", h.updateCategory)
	r.Delete("/categories/{categoryId}", h.deleteCategory)
	create.Post("/categories/{categoryId}/products", h.createProduct)
	r.Put("/categories/{categoryId}/products/{productId}", h.replaceProduct)
	r.Delete("/categories/{categoryId}/products/{productId}", h.deleteProduct)
}

type adminCategoryCreateRequest struct {
	DisplayID *int   `json:"displayId"`
	Name      string `json:"name"`
	NameAr    string `json:"nameAr"`
	Image     string `json:"image"`
	IconName  string `json:"iconName"`
}

type adminCategoryUpdateRequest struct {
	Name   *string `json:"name"`
	NameAr *string `json:"nameAr"`
	Image  *string `json:"image"`
}

type adminProductRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	NameAr          string   `json:"nameAr"`
	Description     string   `json:"description"`
	DescriptionAr   string   `json:"descriptionAr"`
	Price           string   `json:"price"`
	Image           string   `json:"image"`
	Features        []string `json:"features"`
	FeaturesAr      []string `json:"featuresAr"`
	ExpectedVersion *int64   `json:"expectedVersion"`
}

func (p adminProductRequest) toProduct() services.Product {
	return services.Product{
		ID:            strings.TrimSpace(p.ID),
		Name:          p.Name,
		NameAr:        p.NameAr,
		Description:   p.Description,
		DescriptionAr: p.DescriptionAr,
		Price:         p.Price,
		Image:         p.Image,
		Features:      p.Features,
		FeaturesAr:    p.FeaturesAr,
	}
}

type adminCategoryResponse struct {
	ID        string                 `json:"id"`
	DisplayID int                    `json:"displayId"`
	Name      string                 `json:"name"`
	NameAr    string                 `json:"nameAr"`
	Image     string                 `json:"image"`
	IconName  string                 `json:"iconName"`
	Products  []adminProductResponse `json:"products"`
	Version   int64                  `json:"version"`
	UpdatedAt string                 `json:"updatedAt,omitempty"`
}

type adminProductResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameAr        string   `json:"nameAr"`
	Description   string   `json:"description"`
	DescriptionAr string   `json:"descriptionAr"`
	Price         string   `json:"price"`
	Image         string   `json:"image"`
	Features      []string `json:"features"`
	FeaturesAr    []string `json:"featuresAr"`
}

type adminProductChangeResponse struct {
	Product         adminProductResponse `json:"product"`
	CategoryID      string               `json:"categoryId"`
	CategoryVersion int64                `json:"categoryVersion"`
}

func (h *AdminCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	items := make([]adminCategoryResponse, 0, len(categories))
	for _, category := range categories {
		items = append(items, newAdminCategoryResponse(category))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminCategoryCreateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	created, err := h.catalog.CreateCategory(ctx, services.CreateCategoryCommand{
		DisplayID: req.DisplayID,
		Name:      req.Name,
		NameAr:    req.NameAr,
		Image:     req.Image,
		IconName:  req.IconName,
	})
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+created.ID)
	setVersionETag(w, created.Version)
	httpx.WriteJSON(w, http.StatusCreated, newAdminCategoryResponse(created))
}

func (h *AdminCatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	category, err := h.catalog.GetCategory(ctx, chi.URLParam(r, "categoryId"))
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	setVersionETag(w, category.Version)
	httpx.WriteJSON(w, http.StatusOK, newAdminCategoryResponse(category))
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	var req adminCategoryUpdateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	updated, err := h.catalog.UpdateCategory(ctx, services.UpdateCategoryCommand{
		CategoryID: chi.URLParam(r, "categoryId"),
		Name:       req.Name,
		NameAr:     req.NameAr,
		Image:      req.Image,
	})
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	setVersionETag(w, updated.Version)
	httpx.WriteJSON(w, http.StatusOK, newAdminCategoryResponse(updated))
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryId")); err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) replaceProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		writeInvalidRequest(r.Context(), w, errors.New("product id is required"))
		return
	}
	h.saveProduct(w, r, productID)
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.products == nil {
		writeServiceUnavailable(ctx, w, "product")
		return
	}
	version, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	var req adminProductRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	version, err = mergeExpectedVersion(r.Header.Get("If-Match"), version, req.ExpectedVersion)
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	product := req.toProduct()
	if productID != "" {
		if product.ID != "" && product.ID != productID {
			writeInvalidRequest(ctx, w, errors.New("body id does not match path"))
			return
		}
		product.ID = productID
	}

	change, err := h.products.UpsertProduct(ctx, services.UpsertProductCommand{
		CategoryID:      chi.URLParam(r, "categoryId"),
		Product:         product,
		ExpectedVersion: version,
	})
	if err != nil {
		writeServiceError(ctx, w, err, productNotFoundCode(err))
		return
	}

	status := http.StatusOK
	if change.Created {
		status = http.StatusCreated
		base := strings.TrimSuffix(r.URL.Path, "/")
		if productID != "" {
			base = base[:strings.LastIndex(base, "/")]
		}
		w.Header().Set("Location", base+"/"+change.Product.ID)
	}
	setVersionETag(w, change.Category.Version)
	httpx.WriteJSON(w, status, adminProductChangeResponse{
		Product:         newAdminProductResponse(change.Product),
		CategoryID:      change.Category.ID,
		CategoryVersion: change.Category.Version,
	})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeServiceUnavailable(ctx, w, "product")
		return
	}
	version, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	category, err := h.products.DeleteProduct(ctx, services.DeleteProductCommand{
		CategoryID:      chi.URLParam(r, "categoryId"),
		ProductID:       chi.URLParam(r, "productId"),
		ExpectedVersion: version,
	})
	if err != nil {
		writeServiceError(ctx, w, err, productNotFoundCode(err))
		return
	}
	setVersionETag(w, category.Version)
	w.WriteHeader(http.StatusNoContent)
}

// parseIfMatch reads a category version from If-Match. Absent or "*" means no check.
func parseIfMatch(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "*" {
		return 0, nil
	}
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("If-Match must carry a category version, got %q", raw)
	}
	return version, nil
}

// mergeExpectedVersion combines the If-Match version with the body's expectedVersion. When both are
// sent they must agree.
func mergeExpectedVersion(ifMatch string, headerVersion int64, bodyVersion *int64) (int64, error) {
	if bodyVersion == nil {
		return headerVersion, nil
	}
	if *bodyVersion < 0 {
		return 0, fmt.Errorf("expectedVersion must not be negative, got %d", *bodyVersion)
	}
	header := strings.TrimSpace(ifMatch)
	if header != "" && header != "*" && headerVersion != *bodyVersion {
		return 0, fmt.Errorf("If-Match version %d does not match expectedVersion %d", headerVersion, *bodyVersion)
	}
	return *bodyVersion, nil
}

func setVersionETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

func newAdminCategoryResponse(category services.Category) adminCategoryResponse {
	products := make([]adminProductResponse, 0, len(category.Products))
	for _, product := range category.Products {
		products = append(products, newAdminProductResponse(product))
	}
	resp := adminCategoryResponse{
		ID:        category.ID,
		DisplayID: category.DisplayID,
		Name:      category.Name,
		NameAr:    category.NameAr,
		Image:     category.Image,
		IconName:  category.IconName,
		Products:  products,
		Version:   category.Version,
	}
	if !category.UpdatedAt.IsZero() {
		resp.UpdatedAt = category.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func newAdminProductResponse(product services.Product) adminProductResponse {
	return adminProductResponse{
		ID:            product.ID,
		Name:          product.Name,
		NameAr:        product.NameAr,
		Description:   product.Description,
		DescriptionAr: product.DescriptionAr,
		Price:         product.Price,
		Image:         product.Image,
		Features:      nonNilStrings(product.Features),
		FeaturesAr:    nonNilStrings(product.FeaturesAr),
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
