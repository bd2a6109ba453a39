package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nirvana-iot/catalog-api/internal/platform/textutil"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// OfferingDirectory lists the fixed service offerings and default hero imagery.
type OfferingDirectory interface {
	Services() []ServiceOffering
	Lookup(id int) (ServiceOffering, bool)
	HeroFallback() []string
}

// ServiceLinkServiceDeps bundles constructor inputs for the service-product linker.
type ServiceLinkServiceDeps struct {
	Links      repositories.ServiceLinkRepository
	Categories repositories.CategoryRepository
	Offerings  OfferingDirectory
	Events     CatalogEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type serviceLinkService struct {
	links      repositories.ServiceLinkRepository
	categories repositories.CategoryRepository
	offerings  OfferingDirectory
	events     eventEmitter
}

var _ ServiceLinkService = (*serviceLinkService)(nil)

// NewServiceLinkService constructs the service-product linker.
func NewServiceLinkService(deps ServiceLinkServiceDeps) (ServiceLinkService, error) {
	if deps.Links == nil {
		return nil, errors.New("service link service: link repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("service link service: category repository is required")
	}
	if deps.Offerings == nil {
		return nil, errors.New("service link service: offerings are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &serviceLinkService{
		links:      deps.Links,
		categories: deps.Categories,
		offerings:  deps.Offerings,
		events:     newEventEmitter(deps.Events, deps.Logger, func() time.Time { return clock().UTC() }),
	}, nil
}

func (s *serviceLinkService) Offerings() []ServiceOffering {
	return s.offerings.Services()
}

// GetLinks returns the stored product ids; a service without a mapping document has none.
func (s *serviceLinkService) GetLinks(ctx context.Context, serviceID int) (ServiceProductLink, error) {
	if _, ok := s.offerings.Lookup(serviceID); !ok {
		return ServiceProductLink{}, fmt.Errorf("%w: %d", ErrUnknownService, serviceID)
	}
	link, err := s.links.Get(ctx, serviceID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return emptyLink(serviceID), nil
		}
		return ServiceProductLink{}, translateRepositoryError("get service links", err)
	}
	if link.ProductIDs == nil {
		link.ProductIDs = []string{}
	}
	return link, nil
}

// SetLinks overwrites the mapping. Ids are not checked against the catalog.
func (s *serviceLinkService) SetLinks(ctx context.Context, cmd SetLinksCommand) (ServiceProductLink, error) {
	if _, ok := s.offerings.Lookup(cmd.ServiceID); !ok {
		return ServiceProductLink{}, fmt.Errorf("%w: %d", ErrUnknownService, cmd.ServiceID)
	}
	link := ServiceProductLink{
		ServiceID:  cmd.ServiceID,
		ProductIDs: textutil.UniqueIDs(cmd.ProductIDs),
	}
	if err := s.links.Set(ctx, link); err != nil {
		return ServiceProductLink{}, translateRepositoryError("set service links", err)
	}
	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventServiceLinksSet, ServiceID: cmd.ServiceID})
	return s.GetLinks(ctx, cmd.ServiceID)
}

func (s *serviceLinkService) ResolveServiceProducts(ctx context.Context) ([]ServiceProducts, error) {
	links, index, err := s.loadLinksAndProducts(ctx)
	if err != nil {
		return nil, err
	}
	byService := make(map[int][]string, len(links))
	for _, link := range links {
		if link.ServiceID > 0 {
			byService[link.ServiceID] = link.ProductIDs
		}
	}

	offerings := s.offerings.Services()
	out := make([]ServiceProducts, 0, len(offerings))
	for _, offering := range offerings {
		out = append(out, ServiceProducts{
			Service:  offering,
			Products: index.resolve(byService[offering.ID]),
		})
	}
	return out, nil
}

func (s *serviceLinkService) ServiceProducts(ctx context.Context, serviceID int) (ServiceProducts, error) {
	offering, ok := s.offerings.Lookup(serviceID)
	if !ok {
		return ServiceProducts{}, fmt.Errorf("%w: %d", ErrUnknownService, serviceID)
	}

	var (
		link       ServiceProductLink
		categories []Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		link, err = s.GetLinks(gctx, serviceID)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.categories.List(gctx)
		return translateRepositoryError("list categories", err)
	})
	if err := g.Wait(); err != nil {
		return ServiceProducts{}, err
	}
	return ServiceProducts{
		Service:  offering,
		Products: newProductIndex(categories).resolve(link.ProductIDs),
	}, nil
}

func (s *serviceLinkService) loadLinksAndProducts(ctx context.Context) ([]ServiceProductLink, productIndex, error) {
	var (
		links      []ServiceProductLink
		categories []Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		links, err = s.links.List(gctx)
		return translateRepositoryError("list service links", err)
	})
	g.Go(func() error {
		var err error
		categories, err = s.categories.List(gctx)
		return translateRepositoryError("list categories", err)
	})
	if err := g.Wait(); err != nil {
		return nil, productIndex{}, err
	}
	return links, newProductIndex(categories), nil
}

func emptyLink(serviceID int) ServiceProductLink {
	return ServiceProductLink{
		ServiceID:  serviceID,
		DocumentID: fmt.Sprintf("service_%d", serviceID),
		ProductIDs: []string{},
	}
}

// productIndex is the flattened product list of every category in store iteration order.
type productIndex struct {
	products []Product
	ids      map[string]struct{}
}

func newProductIndex(categories []Category) productIndex {
	index := productIndex{ids: make(map[string]struct{})}
	for _, category := range categories {
		for _, product := range category.Products {
			if product.ID == "" {
				continue
			}
			index.products = append(index.products, product)
			index.ids[product.ID] = struct{}{}
		}
	}
	return index
}

// resolve filters the flattened list by the linked ids. Products keep catalog order, not link order,
// and an id present in two categories yields both products. Ids that no longer exist are dropped.
func (idx productIndex) resolve(ids []string) []Product {
	linked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		linked[id] = struct{}{}
	}
	out := make([]Product, 0, len(ids))
	for _, product := range idx.products {
		if _, ok := linked[product.ID]; ok {
			out = append(out, product)
		}
	}
	return out
}

func (idx productIndex) has(id string) bool {
	_, ok := idx.ids[id]
	return ok
}
