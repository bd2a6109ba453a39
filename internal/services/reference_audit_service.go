package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// ReferenceAuditServiceDeps bundles constructor inputs for the reference audit.
type ReferenceAuditServiceDeps struct {
	Categories repositories.CategoryRepository
	Links      repositories.ServiceLinkRepository
	Settings   repositories.SettingsRepository
	Offerings  OfferingDirectory
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type referenceAuditService struct {
	categories repositories.CategoryRepository
	links      repositories.ServiceLinkRepository
	settings   repositories.SettingsRepository
	offerings  OfferingDirectory
	clock      func() time.Time
	logger     logFunc
}

var _ ReferenceAuditService = (*referenceAuditService)(nil)

// NewReferenceAuditService constructs the read-only reference checker.
func NewReferenceAuditService(deps ReferenceAuditServiceDeps) (ReferenceAuditService, error) {
	if deps.Categories == nil || deps.Links == nil || deps.Settings == nil {
		return nil, errors.New("reference audit: category, link and settings repositories are required")
	}
	if deps.Offerings == nil {
		return nil, errors.New("reference audit: offerings are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLog
	}
	return &referenceAuditService{
		categories: deps.Categories,
		links:      deps.Links,
		settings:   deps.Settings,
		offerings:  deps.Offerings,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// AuditReferences reports dangling references. It never modifies data.
func (s *referenceAuditService) AuditReferences(ctx context.Context) (ReferenceReport, error) {
	var (
		categories []Category
		links      []ServiceProductLink
		featured   []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.categories.List(gctx)
		return translateRepositoryError("audit: list categories", err)
	})
	g.Go(func() error {
		var err error
		links, err = s.links.List(gctx)
		return translateRepositoryError("audit: list service links", err)
	})
	g.Go(func() error {
		setting, err := s.settings.FeaturedCategories(gctx)
		if err != nil {
			if repositories.IsNotFound(err) {
				return nil
			}
			return translateRepositoryError("audit: featured categories", err)
		}
		featured = setting.CategoryIDs
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReferenceReport{}, err
	}

	report := ReferenceReport{
		CheckedAt:           s.clock(),
		CategoryCount:       len(categories),
		MissingFeatured:     []string{},
		DanglingLinks:       []domain.DanglingLink{},
		UnknownServiceLinks: []string{},
		DuplicateProductIDs: []domain.DuplicateProduct{},
	}

	categoryIDs := make(map[string]struct{}, len(categories))
	for _, category := range categories {
		categoryIDs[category.ID] = struct{}{}
		report.ProductCount += len(category.Products)

		counts := make(map[string]int, len(category.Products))
		for _, product := range category.Products {
			counts[product.ID]++
		}
		for productID, count := range counts {
			if count > 1 {
				report.DuplicateProductIDs = append(report.DuplicateProductIDs, domain.DuplicateProduct{
					CategoryID: category.ID,
					ProductID:  productID,
					Count:      count,
				})
			}
		}
	}
	sort.Slice(report.DuplicateProductIDs, func(i, j int) bool {
		a, b := report.DuplicateProductIDs[i], report.DuplicateProductIDs[j]
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		return a.ProductID < b.ProductID
	})

	for _, id := range featured {
		if _, ok := categoryIDs[id]; !ok {
			report.MissingFeatured = append(report.MissingFeatured, id)
		}
	}

	index := newProductIndex(categories)
	sort.Slice(links, func(i, j int) bool { return links[i].DocumentID < links[j].DocumentID })
	for _, link := range links {
		if _, ok := s.offerings.Lookup(link.ServiceID); !ok {
			report.UnknownServiceLinks = append(report.UnknownServiceLinks, link.DocumentID)
			continue
		}
		for _, productID := range link.ProductIDs {
			if !index.has(productID) {
				report.DanglingLinks = append(report.DanglingLinks, domain.DanglingLink{
					ServiceID: link.ServiceID,
					ProductID: productID,
				})
			}
		}
	}

	if !report.Clean() {
		s.logger(ctx, "catalog.audit.dangling_references", map[string]any{
			"missingFeatured":     len(report.MissingFeatured),
			"danglingLinks":       len(report.DanglingLinks),
			"unknownServiceLinks": len(report.UnknownServiceLinks),
			"duplicateProducts":   len(report.DuplicateProductIDs),
		})
	}
	return report, nil
}
