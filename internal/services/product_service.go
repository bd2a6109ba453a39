package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nirvana-iot/catalog-api/internal/platform/textutil"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const maxProductIDAttempts = 5

// ProductServiceDeps bundles constructor inputs for the product list editor.
type ProductServiceDeps struct {
	Categories repositories.CategoryRepository
	Events     CatalogEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
	// NewID overrides product id generation, mostly for tests.
	NewID func() string
}

type productService struct {
	repo   repositories.CategoryRepository
	events eventEmitter
	logger logFunc
	newID  func() string
}

var _ ProductService = (*productService)(nil)

// NewProductService constructs the product editor.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Categories == nil {
		return nil, errors.New("product service: category repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLog
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &productService{
		repo:   deps.Categories,
		events: newEventEmitter(deps.Events, logger, func() time.Time { return clock().UTC() }),
		logger: logger,
		newID:  newID,
	}, nil
}

// UpsertProduct replaces the product in place when it carries an id and appends it with a fresh
// id otherwise. The whole list is rewritten in one versioned transaction.
func (s *productService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (ProductChange, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return ProductChange{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if cmd.ExpectedVersion < 0 {
		return ProductChange{}, fmt.Errorf("%w: expected version must not be negative", ErrCatalogInvalidInput)
	}
	product, err := normalizeProduct(cmd.Product)
	if err != nil {
		return ProductChange{}, err
	}

	var (
		saved   Product
		created bool
	)
	category, err := s.repo.MutateProducts(ctx, categoryID, cmd.ExpectedVersion, func(current Category) ([]Product, error) {
		products := append([]Product(nil), current.Products...)
		if product.ID != "" {
			idx := current.ProductIndex(product.ID)
			if idx < 0 {
				return nil, fmt.Errorf("%w: product %s not in category %s", ErrCatalogNotFound, product.ID, categoryID)
			}
			products[idx] = product
			saved, created = product, false
			return products, nil
		}

		fresh := product
		id, err := s.uniqueProductID(current)
		if err != nil {
			return nil, err
		}
		fresh.ID = id
		saved, created = fresh, true
		return append(products, fresh), nil
	})
	if err != nil {
		return ProductChange{}, translateMutationError("upsert product", err)
	}

	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventProductUpserted, CategoryID: categoryID, ProductID: saved.ID})
	return ProductChange{Product: saved, Category: category, Created: created}, nil
}

// DeleteProduct removes exactly one product and keeps the order of the rest.
func (s *productService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	productID := strings.TrimSpace(cmd.ProductID)
	if categoryID == "" || productID == "" {
		return Category{}, fmt.Errorf("%w: category id and product id are required", ErrCatalogInvalidInput)
	}
	if cmd.ExpectedVersion < 0 {
		return Category{}, fmt.Errorf("%w: expected version must not be negative", ErrCatalogInvalidInput)
	}

	category, err := s.repo.MutateProducts(ctx, categoryID, cmd.ExpectedVersion, func(current Category) ([]Product, error) {
		idx := current.ProductIndex(productID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: product %s not in category %s", ErrCatalogNotFound, productID, categoryID)
		}
		products := make([]Product, 0, len(current.Products)-1)
		products = append(products, current.Products[:idx]...)
		return append(products, current.Products[idx+1:]...), nil
	})
	if err != nil {
		return Category{}, translateMutationError("delete product", err)
	}

	s.events.emit(ctx, CatalogEvent{Kind: CatalogEventProductDeleted, CategoryID: categoryID, ProductID: productID})
	return category, nil
}

func (s *productService) uniqueProductID(category Category) (string, error) {
	for attempt := 0; attempt < maxProductIDAttempts; attempt++ {
		id := strings.TrimSpace(s.newID())
		if id != "" && category.ProductIndex(id) < 0 {
			return id, nil
		}
	}
	return "", errors.New("product service: could not allocate a unique product id")
}

// translateMutationError keeps service sentinels raised inside the mutation as they are.
func translateMutationError(op string, err error) error {
	if errors.Is(err, ErrCatalogNotFound) || errors.Is(err, ErrCatalogInvalidInput) {
		return err
	}
	return translateRepositoryError(op, err)
}

func normalizeProduct(product Product) (Product, error) {
	out := Product{
		ID:            strings.TrimSpace(product.ID),
		Name:          textutil.PlainText(product.Name),
		NameAr:        textutil.PlainText(product.NameAr),
		Description:   textutil.PlainText(product.Description),
		DescriptionAr: textutil.PlainText(product.DescriptionAr),
		Price:         textutil.PlainText(product.Price),
		Features:      textutil.PlainTextList(product.Features),
		FeaturesAr:    textutil.PlainTextList(product.FeaturesAr),
	}
	if out.Name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	image, err := normalizeImageRef(product.Image)
	if err != nil {
		return Product{}, err
	}
	out.Image = image
	return out, nil
}
