package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/platform/textutil"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Categories repositories.CategoryRepository
	Events     CatalogEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	repo   repositories.CategoryRepository
	events eventEmitter
	logger logFunc
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the category service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLog
	}
	utc := func() time.Time { return clock().UTC() }
	return &catalogService{
		repo:   deps.Categories,
		events: newEventEmitter(deps.Events, logger, utc),
		logger: logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, translateRepositoryError("list categories", err)
	}
	SortCategories(categories)
	return categories, nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.repo.Get(ctx, categoryID)
	if err != nil {
		return Category{}, translateRepositoryError("get category", err)
	}
	return category, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	category := Category{
		Name:     textutil.PlainText(cmd.Name),
		NameAr:   textutil.PlainText(cmd.NameAr),
		IconName: textutil.PlainText(cmd.IconName),
		Products: []Product{},
	}
	if category.Name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	image, err := normalizeImageRef(cmd.Image)
	if err != nil {
		return Category{}, err
	}
	category.Image = image
	if category.IconName == "" {
		category.IconName = domain.DefaultCategoryIcon
	}

	if cmd.DisplayID != nil {
		if *cmd.DisplayID < 0 {
			return Category{}, fmt.Errorf("%w: displayId must not be negative", ErrCatalogInvalidInput)
		}
		category.DisplayID = *cmd.DisplayID
	} else {
		existing, err := s.repo.List(ctx)
		if err != nil {
			return Category{}, translateRepositoryError("create category", err)
		}
		category.DisplayID = NextDisplayID(existing)
	}

	created, err := s.repo.Create(ctx, category)
	if err != nil {
		return Category{}, translateRepositoryError("create category", err)
	}
	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventCategoryCreated, CategoryID: created.ID})
	return created, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}

	var update repositories.CategoryFieldUpdate
	if cmd.Name != nil {
		name := textutil.PlainText(*cmd.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: name must not be empty", ErrCatalogInvalidInput)
		}
		update.Name = &name
	}
	if cmd.NameAr != nil {
		nameAr := textutil.PlainText(*cmd.NameAr)
		update.NameAr = &nameAr
	}
	if cmd.Image != nil {
		image, err := normalizeImageRef(*cmd.Image)
		if err != nil {
			return Category{}, err
		}
		update.Image = &image
	}

	updated, err := s.repo.UpdateFields(ctx, categoryID, update)
	if err != nil {
		return Category{}, translateRepositoryError("update category", err)
	}
	if !update.Empty() {
		s.events.emit(ctx, CatalogEvent{Kind: CatalogEventCategoryUpdated, CategoryID: categoryID})
	}
	return updated, nil
}

// DeleteCategory removes the document only. Links and featured ids pointing at it are left for
// readers to filter.
func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.Delete(ctx, categoryID); err != nil {
		return translateRepositoryError("delete category", err)
	}
	s.logger(ctx, "catalog.category.deleted", map[string]any{"categoryId": categoryID})
	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventCategoryDeleted, CategoryID: categoryID})
	return nil
}

// SortCategories orders categories by displayId ascending, ties broken by id.
func SortCategories(categories []Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].DisplayID != categories[j].DisplayID {
			return categories[i].DisplayID < categories[j].DisplayID
		}
		return categories[i].ID < categories[j].ID
	})
}

// NextDisplayID returns one past the largest displayId, or 1 for an empty catalog.
func NextDisplayID(categories []Category) int {
	if len(categories) == 0 {
		return 1
	}
	highest := categories[0].DisplayID
	for _, category := range categories[1:] {
		if category.DisplayID > highest {
			highest = category.DisplayID
		}
	}
	return highest + 1
}

// normalizeImageRef accepts absolute http(s) URLs and site-relative paths such as /hero-lock.jpg.
func normalizeImageRef(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", nil
	}
	if strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") {
		return value, nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return "", fmt.Errorf("%w: image must be an http(s) URL or a site path", ErrCatalogInvalidInput)
	}
	return value, nil
}
