package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// AdminSettingsHandlers manages the homepage featured categories and hero backgrounds.
type AdminSettingsHandlers struct {
	settings services.SettingsService
}

// NewAdminSettingsHandlers constructs the settings handlers.
func NewAdminSettingsHandlers(settings services.SettingsService) *AdminSettingsHandlers {
	return &AdminSettingsHandlers{settings: settings}
}

// Routes registers the settings endpoints.
func (h *AdminSettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/settings", func(rt chi.Router) {
		rt.Get("/featured-categories", h.getFeatured)
		rt.Put("/featured-categories", h.setFeatured)
		rt.Get("/hero-backgrounds", h.getHero)
		rt.Put("/hero-backgrounds", h.setHero)
	})
}

type featuredCategoriesPayload struct {
	CategoryIDs []string `json:"categoryIds"`
}

type featuredCategoriesResponse struct {
	CategoryIDs []string `json:"categoryIds"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

type heroBackgroundsPayload struct {
	Images []string `json:"images"`
}

type heroBackgroundsResponse struct {
	Images    []string `json:"images"`
	Fallback  bool     `json:"fallback"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

func (h *AdminSettingsHandlers) getFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w, "settings")
		return
	}
	featured, err := h.settings.GetFeatured(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newFeaturedResponse(featured))
}

func (h *AdminSettingsHandlers) setFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w, "settings")
		return
	}
	var req featuredCategoriesPayload
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	if req.CategoryIDs == nil {
		writeInvalidRequest(ctx, w, errors.New("categoryIds is required"))
		return
	}
	featured, err := h.settings.SetFeatured(ctx, services.SetFeaturedCommand{CategoryIDs: req.CategoryIDs})
	if err != nil {
		writeServiceError(ctx, w, err, "category_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newFeaturedResponse(featured))
}

func (h *AdminSettingsHandlers) getHero(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w, "settings")
		return
	}
	view, err := h.settings.GetHeroBackgrounds(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "route_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newHeroResponse(view))
}

func (h *AdminSettingsHandlers) setHero(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeServiceUnavailable(ctx, w, "settings")
		return
	}
	var req heroBackgroundsPayload
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	if req.Images == nil {
		writeInvalidRequest(ctx, w, errors.New("images is required"))
		return
	}
	view, err := h.settings.SetHeroBackgrounds(ctx, services.SetHeroBackgroundsCommand{Images: req.Images})
	if err != nil {
		writeServiceError(ctx, w, err, "route_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newHeroResponse(view))
}

func newFeaturedResponse(featured services.FeaturedCategories) featuredCategoriesResponse {
	resp := featuredCategoriesResponse{CategoryIDs: nonNilStrings(featured.CategoryIDs)}
	if !featured.UpdatedAt.IsZero() {
		resp.UpdatedAt = featured.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func newHeroResponse(view services.HeroBackgroundsView) heroBackgroundsResponse {
	resp := heroBackgroundsResponse{Images: nonNilStrings(view.Images), Fallback: view.Fallback}
	if !view.UpdatedAt.IsZero() {
		resp.UpdatedAt = view.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
