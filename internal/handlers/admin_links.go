package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// AdminLinkHandlers edits the product list attached to each service offering.
type AdminLinkHandlers struct {
	links services.ServiceLinkService
}

// NewAdminLinkHandlers constructs the service-product link handlers.
func NewAdminLinkHandlers(links services.ServiceLinkService) *AdminLinkHandlers {
	return &AdminLinkHandlers{links: links}
}

// Routes registers the link endpoints.
func (h *AdminLinkHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/services", h.listServices)
	r.Get("/services/{serviceId}/products", h.getLinks)
	r.Put("/services/{serviceId}/products", h.setLinks)
}

type serviceResponse struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	NameAr string `json:"nameAr"`
	Slug   string `json:"slug"`
}

type serviceLinkResponse struct {
	ServiceID  int      `json:"serviceId"`
	ProductIDs []string `json:"productIds"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

type setServiceLinksRequest struct {
	ProductIDs []string `json:"productIds"`
}

func (h *AdminLinkHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	if h.links == nil {
		writeServiceUnavailable(r.Context(), w, "service link")
		return
	}
	offerings := h.links.Offerings()
	items := make([]serviceResponse, 0, len(offerings))
	for _, offering := range offerings {
		items = append(items, newServiceResponse(offering))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminLinkHandlers) getLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.links == nil {
		writeServiceUnavailable(ctx, w, "service link")
		return
	}
	serviceID, err := parseServiceID(r)
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	link, err := h.links.GetLinks(ctx, serviceID)
	if err != nil {
		writeServiceError(ctx, w, err, "service_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newServiceLinkResponse(link))
}

func (h *AdminLinkHandlers) setLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.links == nil {
		writeServiceUnavailable(ctx, w, "service link")
		return
	}
	serviceID, err := parseServiceID(r)
	if err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	var req setServiceLinksRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	if req.ProductIDs == nil {
		writeInvalidRequest(ctx, w, errors.New("productIds is required"))
		return
	}
	link, err := h.links.SetLinks(ctx, services.SetLinksCommand{ServiceID: serviceID, ProductIDs: req.ProductIDs})
	if err != nil {
		writeServiceError(ctx, w, err, "service_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newServiceLinkResponse(link))
}

func parseServiceID(r *http.Request) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "serviceId"))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.New("serviceId must be a positive integer")
	}
	return id, nil
}

func newServiceResponse(offering services.ServiceOffering) serviceResponse {
	return serviceResponse{
		ID:     offering.ID,
		Name:   offering.Name,
		NameAr: offering.NameAr,
		Slug:   offering.Slug,
	}
}

func newServiceLinkResponse(link services.ServiceProductLink) serviceLinkResponse {
	resp := serviceLinkResponse{
		ServiceID:  link.ServiceID,
		ProductIDs: nonNilStrings(link.ProductIDs),
	}
	if !link.UpdatedAt.IsZero() {
		resp.UpdatedAt = link.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
