package services

import (
	"context"
	"errors"
)

// StorefrontServiceDeps wires the admin-facing services that the public pages read through.
type StorefrontServiceDeps struct {
	Catalog   CatalogService
	Links     ServiceLinkService
	Settings  SettingsService
	Offerings OfferingDirectory
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type storefrontService struct {
	catalog   CatalogService
	links     ServiceLinkService
	settings  SettingsService
	offerings OfferingDirectory
	logger    logFunc
}

var _ StorefrontService = (*storefrontService)(nil)

// NewStorefrontService constructs the public read facade.
func NewStorefrontService(deps StorefrontServiceDeps) (StorefrontService, error) {
	if deps.Catalog == nil || deps.Links == nil || deps.Settings == nil {
		return nil, errors.New("storefront service: catalog, links and settings services are required")
	}
	if deps.Offerings == nil {
		return nil, errors.New("storefront service: offerings are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLog
	}
	return &storefrontService{
		catalog:   deps.Catalog,
		links:     deps.Links,
		settings:  deps.Settings,
		offerings: deps.Offerings,
		logger:    logger,
	}, nil
}

func (s *storefrontService) Categories(ctx context.Context) []Category {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		s.degraded(ctx, "categories", err)
		return []Category{}
	}
	return categories
}

func (s *storefrontService) HomepageCategories(ctx context.Context) []Category {
	categories, err := s.settings.HomepageCategories(ctx)
	if err != nil {
		s.degraded(ctx, "homepage_categories", err)
		return []Category{}
	}
	return categories
}

func (s *storefrontService) Services(ctx context.Context) []ServiceProducts {
	resolved, err := s.links.ResolveServiceProducts(ctx)
	if err != nil {
		s.degraded(ctx, "services", err)
		offerings := s.offerings.Services()
		out := make([]ServiceProducts, 0, len(offerings))
		for _, offering := range offerings {
			out = append(out, ServiceProducts{Service: offering, Products: []Product{}})
		}
		return out
	}
	return resolved
}

func (s *storefrontService) ServiceProducts(ctx context.Context, serviceID int) (ServiceProducts, error) {
	resolved, err := s.links.ServiceProducts(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			return ServiceProducts{}, err
		}
		s.degraded(ctx, "service_products", err)
		offering, ok := s.offerings.Lookup(serviceID)
		if !ok {
			return ServiceProducts{}, err
		}
		return ServiceProducts{Service: offering, Products: []Product{}}, nil
	}
	return resolved, nil
}

// HeroBackgrounds falls back to the built-in images when the setting is unreadable.
func (s *storefrontService) HeroBackgrounds(ctx context.Context) []string {
	view, err := s.settings.GetHeroBackgrounds(ctx)
	if err != nil {
		s.degraded(ctx, "hero_backgrounds", err)
		return s.offerings.HeroFallback()
	}
	return view.Images
}

func (s *storefrontService) degraded(ctx context.Context, view string, err error) {
	s.logger(ctx, "storefront.read_degraded", map[string]any{
		"view":  view,
		"error": err.Error(),
	})
}
