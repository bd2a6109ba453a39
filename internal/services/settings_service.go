package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/platform/textutil"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// SettingsServiceDeps bundles constructor inputs for the settings service.
type SettingsServiceDeps struct {
	Settings   repositories.SettingsRepository
	Categories repositories.CategoryRepository
	Offerings  OfferingDirectory
	Events     CatalogEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type settingsService struct {
	settings   repositories.SettingsRepository
	categories repositories.CategoryRepository
	offerings  OfferingDirectory
	events     eventEmitter
}

var _ SettingsService = (*settingsService)(nil)

// NewSettingsService constructs the featured-category and hero settings service.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings service: settings repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("settings service: category repository is required")
	}
	if deps.Offerings == nil {
		return nil, errors.New("settings service: offerings are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &settingsService{
		settings:   deps.Settings,
		categories: deps.Categories,
		offerings:  deps.Offerings,
		events:     newEventEmitter(deps.Events, deps.Logger, func() time.Time { return clock().UTC() }),
	}, nil
}

// GetFeatured returns the configured ids; an absent document yields an empty selection.
func (s *settingsService) GetFeatured(ctx context.Context) (FeaturedCategories, error) {
	featured, err := s.settings.FeaturedCategories(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return FeaturedCategories{CategoryIDs: []string{}}, nil
		}
		return FeaturedCategories{}, translateRepositoryError("get featured categories", err)
	}
	if featured.CategoryIDs == nil {
		featured.CategoryIDs = []string{}
	}
	return featured, nil
}

func (s *settingsService) SetFeatured(ctx context.Context, cmd SetFeaturedCommand) (FeaturedCategories, error) {
	setting := FeaturedCategories{CategoryIDs: textutil.UniqueIDs(cmd.CategoryIDs)}
	if err := s.settings.SaveFeaturedCategories(ctx, setting); err != nil {
		return FeaturedCategories{}, translateRepositoryError("set featured categories", err)
	}
	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventFeaturedSet})
	return s.GetFeatured(ctx)
}

// HomepageCategories returns the configured categories in configured order, dropping unknown ids.
// Without a configuration it falls back to the first categories in store iteration order, which
// is document id order rather than displayId order.
func (s *settingsService) HomepageCategories(ctx context.Context) ([]Category, error) {
	var (
		featured   FeaturedCategories
		categories []Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		featured, err = s.GetFeatured(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.categories.List(gctx)
		return translateRepositoryError("list categories", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return SelectHomepageCategories(featured.CategoryIDs, categories), nil
}

// SelectHomepageCategories applies the homepage selection rule to categories listed in store order.
func SelectHomepageCategories(featuredIDs []string, categories []Category) []Category {
	if len(featuredIDs) == 0 {
		n := min(len(categories), domain.HomepageFallbackCategoryCount)
		return append([]Category{}, categories[:n]...)
	}
	byID := make(map[string]Category, len(categories))
	for _, category := range categories {
		byID[category.ID] = category
	}
	out := make([]Category, 0, len(featuredIDs))
	for _, id := range featuredIDs {
		if category, ok := byID[id]; ok {
			out = append(out, category)
		}
	}
	return out
}

func (s *settingsService) GetHeroBackgrounds(ctx context.Context) (HeroBackgroundsView, error) {
	hero, err := s.settings.HeroBackgrounds(ctx)
	if err != nil {
		if repositories.IsNotFound(err) {
			return s.fallbackHero(), nil
		}
		return HeroBackgroundsView{}, translateRepositoryError("get hero backgrounds", err)
	}
	images := textutil.UniqueIDs(hero.Images)
	if len(images) == 0 {
		view := s.fallbackHero()
		view.UpdatedAt = hero.UpdatedAt
		return view, nil
	}
	return HeroBackgroundsView{Images: images, UpdatedAt: hero.UpdatedAt}, nil
}

// SetHeroBackgrounds overwrites the images. Saving an empty list reverts readers to the fallback.
func (s *settingsService) SetHeroBackgrounds(ctx context.Context, cmd SetHeroBackgroundsCommand) (HeroBackgroundsView, error) {
	images := make([]string, 0, len(cmd.Images))
	for _, raw := range textutil.UniqueIDs(cmd.Images) {
		image, err := normalizeImageRef(raw)
		if err != nil {
			return HeroBackgroundsView{}, fmt.Errorf("%w: hero image %q", err, raw)
		}
		images = append(images, image)
	}
	if err := s.settings.SaveHeroBackgrounds(ctx, HeroBackgrounds{Images: images}); err != nil {
		return HeroBackgroundsView{}, translateRepositoryError("set hero backgrounds", err)
	}
	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventHeroBackgroundsSet})
	return s.GetHeroBackgrounds(ctx)
}

func (s *settingsService) fallbackHero() HeroBackgroundsView {
	return HeroBackgroundsView{Images: s.offerings.HeroFallback(), Fallback: true}
}
