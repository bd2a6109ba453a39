package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirvana-iot/catalog-api/internal/platform/i18n"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

func publicRouter(storefront services.StorefrontService) chi.Router {
	router := chi.NewRouter()
	router.Use(i18n.Middleware)
	NewPublicCatalogHandlers(storefront).Routes(router)
	return router
}

type publicCategoriesBody struct {
	Lang  string           `json:"lang"`
	Dir   string           `json:"dir"`
	Items []publicCategory `json:"items"`
}

func TestPublicCatalogHandlers_CategoriesLocalized(t *testing.T) {
	stack := newCatalogStack(t)
	category := stack.createCategory(t, "Locks", 1)
	stack.addProduct(t, category.ID, services.Product{
		Name:          "Deadbolt",
		NameAr:        "قفل",
		Description:   "Steel bolt",
		Features:      []string{"Steel"},
		FeaturesAr:    []string{"فولاذ"},
		DescriptionAr: "",
	})
	router := publicRouter(stack.storefront)

	rr := serve(router, jsonRequest(t, http.MethodGet, "/categories?lang=ar", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ar", rr.Header().Get("Content-Language"))
	assert.Equal(t, publicCacheControl, rr.Header().Get("Cache-Control"))

	body := decodeBody[publicCategoriesBody](t, rr)
	assert.Equal(t, "ar", body.Lang)
	assert.Equal(t, "rtl", body.Dir)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Locks ar", body.Items[0].DisplayName)
	require.Len(t, body.Items[0].Products, 1)
	product := body.Items[0].Products[0]
	assert.Equal(t, "قفل", product.DisplayName)
	assert.Equal(t, "Steel bolt", product.DisplayDescription, "empty arabic text falls back to english")
	assert.Equal(t, []string{"فولاذ"}, product.DisplayFeatures)
	assert.Equal(t, "Deadbolt", product.Name, "both variants are returned")

	req := jsonRequest(t, http.MethodGet, "/categories", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	body = decodeBody[publicCategoriesBody](t, serve(router, req))
	assert.Equal(t, "ltr", body.Dir)
	assert.Equal(t, "Deadbolt", body.Items[0].Products[0].DisplayName)
}

func TestPublicCatalogHandlers_FeaturedFallsBackToFirstFour(t *testing.T) {
	stack := newCatalogStack(t)
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		stack.createCategory(t, name, i+1)
	}
	router := publicRouter(stack.storefront)

	body := decodeBody[publicCategoriesBody](t, serve(router, jsonRequest(t, http.MethodGet, "/featured-categories", nil)))
	assert.Len(t, body.Items, 4)

	ids := []string{body.Items[3].ID, body.Items[0].ID, "missing"}
	_, err := stack.settings.SetFeatured(context.Background(), services.SetFeaturedCommand{CategoryIDs: ids})
	require.NoError(t, err)

	body = decodeBody[publicCategoriesBody](t, serve(router, jsonRequest(t, http.MethodGet, "/featured-categories", nil)))
	require.Len(t, body.Items, 2)
	assert.Equal(t, ids[0], body.Items[0].ID)
	assert.Equal(t, ids[1], body.Items[1].ID)
}

func TestPublicCatalogHandlers_ServicesDropDeletedProducts(t *testing.T) {
	stack := newCatalogStack(t)
	keep := stack.createCategory(t, "Sensors", 1)
	gone := stack.createCategory(t, "Legacy", 2)
	kept := stack.addProduct(t, keep.ID, services.Product{Name: "Motion sensor"})
	dropped := stack.addProduct(t, gone.ID, services.Product{Name: "Old hub"})
	_, err := stack.links.SetLinks(context.Background(), services.SetLinksCommand{
		ServiceID:  1,
		ProductIDs: []string{dropped.Product.ID, kept.Product.ID},
	})
	require.NoError(t, err)
	require.NoError(t, stack.catalog.DeleteCategory(context.Background(), gone.ID))
	router := publicRouter(stack.storefront)

	rr := serve(router, jsonRequest(t, http.MethodGet, "/services", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	all := decodeBody[struct {
		Items []publicServiceProducts `json:"items"`
	}](t, rr)
	require.NotEmpty(t, all.Items)
	assert.Equal(t, 1, all.Items[0].Service.ID)
	require.Len(t, all.Items[0].Products, 1)
	assert.Equal(t, kept.Product.ID, all.Items[0].Products[0].ID)

	rr = serve(router, jsonRequest(t, http.MethodGet, "/services/1/products?lang=ar", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	one := decodeBody[struct {
		Lang     string          `json:"lang"`
		Service  publicService   `json:"service"`
		Products []publicProduct `json:"products"`
	}](t, rr)
	assert.Equal(t, "ar", one.Lang)
	assert.Equal(t, "حلول المنازل الذكية", one.Service.DisplayName)
	assert.Len(t, one.Products, 1)

	rr = serve(router, jsonRequest(t, http.MethodGet, "/services/42/products", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "service_not_found", errorCode(t, rr))
}

type degradedStorefront struct{}

func (degradedStorefront) Categories(context.Context) []services.Category         { return []services.Category{} }
func (degradedStorefront) HomepageCategories(context.Context) []services.Category { return nil }
func (degradedStorefront) Services(context.Context) []services.ServiceProducts    { return nil }
func (degradedStorefront) ServiceProducts(context.Context, int) (services.ServiceProducts, error) {
	return services.ServiceProducts{}, nil
}
func (degradedStorefront) HeroBackgrounds(context.Context) []string { return nil }

func TestPublicCatalogHandlers_EmptyResultsEncodeAsArrays(t *testing.T) {
	router := publicRouter(degradedStorefront{})

	for _, path := range []string{"/categories", "/featured-categories", "/services"} {
		rr := serve(router, jsonRequest(t, http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), `"items":[]`, path)
	}
	rr := serve(router, jsonRequest(t, http.MethodGet, "/hero-backgrounds", nil))
	assert.Contains(t, rr.Body.String(), `"images":[]`)
}
