package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/offerings"
	"github.com/nirvana-iot/catalog-api/internal/platform/auth"
	"github.com/nirvana-iot/catalog-api/internal/repositories/bolt"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

var handlerTestNow = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

// catalogStack is the real service graph over a throwaway bolt file.
type catalogStack struct {
	store      *bolt.Registry
	catalog    services.CatalogService
	products   services.ProductService
	links      services.ServiceLinkService
	settings   services.SettingsService
	storefront services.StorefrontService
	audit      services.ReferenceAuditService
}

func newCatalogStack(t *testing.T) *catalogStack {
	t.Helper()
	clock := func() time.Time { return handlerTestNow }
	store, err := bolt.Open(filepath.Join(t.TempDir(), "catalog.db"), clock)
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	directory := offerings.Default()
	stack := &catalogStack{store: store}
	if stack.catalog, err = services.NewCatalogService(services.CatalogServiceDeps{Categories: store.Categories(), Clock: clock}); err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	if stack.products, err = services.NewProductService(services.ProductServiceDeps{Categories: store.Categories(), Clock: clock}); err != nil {
		t.Fatalf("product service: %v", err)
	}
	if stack.links, err = services.NewServiceLinkService(services.ServiceLinkServiceDeps{
		Links: store.ServiceLinks(), Categories: store.Categories(), Offerings: directory, Clock: clock,
	}); err != nil {
		t.Fatalf("link service: %v", err)
	}
	if stack.settings, err = services.NewSettingsService(services.SettingsServiceDeps{
		Settings: store.Settings(), Categories: store.Categories(), Offerings: directory, Clock: clock,
	}); err != nil {
		t.Fatalf("settings service: %v", err)
	}
	if stack.storefront, err = services.NewStorefrontService(services.StorefrontServiceDeps{
		Catalog: stack.catalog, Links: stack.links, Settings: stack.settings, Offerings: directory,
	}); err != nil {
		t.Fatalf("storefront service: %v", err)
	}
	if stack.audit, err = services.NewReferenceAuditService(services.ReferenceAuditServiceDeps{
		Categories: store.Categories(), Links: store.ServiceLinks(), Settings: store.Settings(), Offerings: directory, Clock: clock,
	}); err != nil {
		t.Fatalf("audit service: %v", err)
	}
	return stack
}

func (s *catalogStack) createCategory(t *testing.T, name string, displayID int) services.Category {
	t.Helper()
	category, err := s.catalog.CreateCategory(context.Background(), services.CreateCategoryCommand{
		DisplayID: &displayID,
		Name:      name,
		NameAr:    name + " ar",
	})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return category
}

func (s *catalogStack) addProduct(t *testing.T, categoryID string, product services.Product) services.ProductChange {
	t.Helper()
	change, err := s.products.UpsertProduct(context.Background(), services.UpsertProductCommand{CategoryID: categoryID, Product: product})
	if err != nil {
		t.Fatalf("add product %s: %v", product.Name, err)
	}
	return change
}

func routerFor(routes func(chi.Router)) chi.Router {
	router := chi.NewRouter()
	routes(router)
	return router
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func asAdmin(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, SignInProvider: "password"}))
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[map[string]any](t, rr)
	code, _ := body["error"].(string)
	return code
}
