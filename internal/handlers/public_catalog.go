package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/platform/i18n"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

const publicCacheControl = "public, max-age=60"

// PublicCatalogHandlers serves the storefront pages. Responses carry both language variants plus
// display fields resolved for the request locale.
type PublicCatalogHandlers struct {
	storefront services.StorefrontService
}

// NewPublicCatalogHandlers constructs the public storefront handlers.
func NewPublicCatalogHandlers(storefront services.StorefrontService) *PublicCatalogHandlers {
	return &PublicCatalogHandlers{storefront: storefront}
}

// Routes registers the storefront endpoints.
func (h *PublicCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/featured-categories", h.listFeaturedCategories)
	r.Get("/services", h.listServices)
	r.Get("/services/{serviceId}/products", h.listServiceProducts)
	r.Get("/hero-backgrounds", h.heroBackgrounds)
}

type publicProduct struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	NameAr             string   `json:"nameAr"`
	DisplayName        string   `json:"displayName"`
	Description        string   `json:"description"`
	DescriptionAr      string   `json:"descriptionAr"`
	DisplayDescription string   `json:"displayDescription"`
	Price              string   `json:"price"`
	Image              string   `json:"image"`
	Features           []string `json:"features"`
	FeaturesAr         []string `json:"featuresAr"`
	DisplayFeatures    []string `json:"displayFeatures"`
}

type publicCategory struct {
	ID          string          `json:"id"`
	DisplayID   int             `json:"displayId"`
	Name        string          `json:"name"`
	NameAr      string          `json:"nameAr"`
	DisplayName string          `json:"displayName"`
	Image       string          `json:"image"`
	IconName    string          `json:"iconName"`
	Products    []publicProduct `json:"products"`
}

type publicService struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	NameAr      string `json:"nameAr"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

type publicServiceProducts struct {
	Service  publicService   `json:"service"`
	Products []publicProduct `json:"products"`
}

type localizedEnvelope struct {
	Lang string `json:"lang"`
	Dir  string `json:"dir"`
}

func (h *PublicCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.storefront == nil {
		writeServiceUnavailable(ctx, w, "storefront")
		return
	}
	locale := i18n.FromContext(ctx)
	writePublicJSON(w, struct {
		localizedEnvelope
		Items []publicCategory `json:"items"`
	}{envelopeFor(locale), localizeCategories(locale, h.storefront.Categories(ctx))})
}

func (h *PublicCatalogHandlers) listFeaturedCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.storefront == nil {
		writeServiceUnavailable(ctx, w, "storefront")
		return
	}
	locale := i18n.FromContext(ctx)
	writePublicJSON(w, struct {
		localizedEnvelope
		Items []publicCategory `json:"items"`
	}{envelopeFor(locale), localizeCategories(locale, h.storefront.HomepageCategories(ctx))})
}

func (h *PublicCatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.storefront == nil {
		writeServiceUnavailable(ctx, w, "storefront")
		return
	}
	locale := i18n.FromContext(ctx)
	resolved := h.storefront.Services(ctx)
	items := make([]publicServiceProducts, 0, len(resolved))
	for _, entry := range resolved {
		items = append(items, localizeServiceProducts(locale, entry))
	}
	writePublicJSON(w, struct {
		localizedEnvelope
		Items []publicServiceProducts `json:"items"`
	}{envelopeFor(locale), items})
}

func (h *PublicCatalogHandlers) listServiceProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.storefront == nil {
		writeServiceUnavailable(ctx, w, "storefront")
		return
	}
	serviceID, err := parseServiceID(r)
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	resolved, err := h.storefront.ServiceProducts(ctx, serviceID)
	if err != nil {
		writeServiceError(ctx, w, err, "service_not_found")
		return
	}
	locale := i18n.FromContext(ctx)
	writePublicJSON(w, struct {
		localizedEnvelope
		publicServiceProducts
	}{envelopeFor(locale), localizeServiceProducts(locale, resolved)})
}

func (h *PublicCatalogHandlers) heroBackgrounds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.storefront == nil {
		writeServiceUnavailable(ctx, w, "storefront")
		return
	}
	locale := i18n.FromContext(ctx)
	writePublicJSON(w, struct {
		localizedEnvelope
		Images []string `json:"images"`
	}{envelopeFor(locale), nonNilStrings(h.storefront.HeroBackgrounds(ctx))})
}

func writePublicJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Cache-Control", publicCacheControl)
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func envelopeFor(locale i18n.Locale) localizedEnvelope {
	return localizedEnvelope{Lang: locale.Lang, Dir: locale.Dir()}
}

func localizeCategories(locale i18n.Locale, categories []services.Category) []publicCategory {
	out := make([]publicCategory, 0, len(categories))
	for _, category := range categories {
		out = append(out, publicCategory{
			ID:          category.ID,
			DisplayID:   category.DisplayID,
			Name:        category.Name,
			NameAr:      category.NameAr,
			DisplayName: locale.Pick(category.Name, category.NameAr),
			Image:       category.Image,
			IconName:    category.IconName,
			Products:    localizeProducts(locale, category.Products),
		})
	}
	return out
}

func localizeProducts(locale i18n.Locale, products []services.Product) []publicProduct {
	out := make([]publicProduct, 0, len(products))
	for _, product := range products {
		out = append(out, publicProduct{
			ID:                 product.ID,
			Name:               product.Name,
			NameAr:             product.NameAr,
			DisplayName:        locale.Pick(product.Name, product.NameAr),
			Description:        product.Description,
			DescriptionAr:      product.DescriptionAr,
			DisplayDescription: locale.Pick(product.Description, product.DescriptionAr),
			Price:              product.Price,
			Image:              product.Image,
			Features:           nonNilStrings(product.Features),
			FeaturesAr:         nonNilStrings(product.FeaturesAr),
			DisplayFeatures:    locale.PickList(product.Features, product.FeaturesAr),
		})
	}
	return out
}

func localizeServiceProducts(locale i18n.Locale, entry services.ServiceProducts) publicServiceProducts {
	return publicServiceProducts{
		Service: publicService{
			ID:          entry.Service.ID,
			Name:        entry.Service.Name,
			NameAr:      entry.Service.NameAr,
			DisplayName: locale.Pick(entry.Service.Name, entry.Service.NameAr),
			Slug:        entry.Service.Slug,
		},
		Products: localizeProducts(locale, entry.Products),
	}
}
