package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const categoriesCollection = "categories"

type productDocument struct {
	ID            string   `firestore:"id"`
	Name          string   `firestore:"name"`
	NameAr        string   `firestore:"nameAr"`
	Description   string   `firestore:"description"`
	DescriptionAr string   `firestore:"descriptionAr"`
	Price         string   `firestore:"price"`
	Image         string   `firestore:"image"`
	Features      []string `firestore:"features"`
	FeaturesAr    []string `firestore:"featuresAr"`
}

type categoryDocument struct {
	DisplayID int               `firestore:"displayId"`
	Name      string            `firestore:"name"`
	NameAr    string            `firestore:"nameAr"`
	Image     string            `firestore:"image"`
	IconName  string            `firestore:"iconName"`
	Products  []productDocument `firestore:"products"`
	Version   int64             `firestore:"version"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

// CategoryRepository stores categories with their embedded product arrays.
type CategoryRepository struct {
	base  *pfirestore.BaseRepository[domain.Category]
	tx    func(ctx context.Context, fn pfirestore.TxFunc, opts ...pfirestore.TxOption) error
	clock func() time.Time
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider, clock func() time.Time) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CategoryRepository{
		base:  pfirestore.NewBaseRepository[domain.Category](provider, categoriesCollection, encodeCategory, decodeCategory),
		tx:    provider.RunTransaction,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

// List returns every category in document id order.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.All(ctx)
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, withID(doc))
	}
	return categories, nil
}

func (r *CategoryRepository) Get(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		return domain.Category{}, err
	}
	return withID(doc), nil
}

func (r *CategoryRepository) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	category.Version = 1
	category.UpdatedAt = r.clock()
	if category.Products == nil {
		category.Products = []domain.Product{}
	}
	id, _, err := r.base.Create(ctx, category)
	if err != nil {
		return domain.Category{}, err
	}
	category.ID = id
	return category, nil
}

func (r *CategoryRepository) UpdateFields(ctx context.Context, categoryID string, update repositories.CategoryFieldUpdate) (domain.Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	updates := make([]firestore.Update, 0, 4)
	if update.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *update.Name})
	}
	if update.NameAr != nil {
		updates = append(updates, firestore.Update{Path: "nameAr", Value: *update.NameAr})
	}
	if update.Image != nil {
		updates = append(updates, firestore.Update{Path: "image", Value: *update.Image})
	}
	if len(updates) > 0 {
		updates = append(updates, firestore.Update{Path: "updatedAt", Value: r.clock()})
		if _, err := r.base.Update(ctx, categoryID, updates); err != nil {
			return domain.Category{}, err
		}
	}
	return r.Get(ctx, categoryID)
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(categoryID), firestore.Exists)
}

// MutateProducts rewrites the product array inside a transaction and bumps the category version.
func (r *CategoryRepository) MutateProducts(ctx context.Context, categoryID string, expectedVersion int64, mutate repositories.ProductMutation) (domain.Category, error) {
	if mutate == nil {
		return domain.Category{}, errors.New("categories.mutate_products: mutation is required")
	}
	categoryID = strings.TrimSpace(categoryID)

	var result domain.Category
	err := r.tx(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.base.GetTx(ctx, tx, categoryID)
		if err != nil {
			return err
		}
		current := withID(doc)
		if expectedVersion > 0 && current.Version != expectedVersion {
			return repositories.NewConflictError("categories.mutate_products",
				fmt.Errorf("%w: expected %d, stored %d", repositories.ErrVersionMismatch, expectedVersion, current.Version))
		}
		products, err := mutate(current)
		if err != nil {
			return err
		}

		next := current
		next.Products = products
		next.Version = current.Version + 1
		next.UpdatedAt = r.clock()
		if err := r.base.UpdateTx(ctx, tx, categoryID, []firestore.Update{
			{Path: "products", Value: encodeProducts(next.Products)},
			{Path: "version", Value: next.Version},
			{Path: "updatedAt", Value: next.UpdatedAt},
		}); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return result, nil
}

func withID(doc pfirestore.Document[domain.Category]) domain.Category {
	category := doc.Data
	category.ID = doc.ID
	if category.UpdatedAt.IsZero() {
		category.UpdatedAt = doc.UpdateTime.UTC()
	}
	return category
}

func encodeCategory(category domain.Category) (any, error) {
	return categoryDocument{
		DisplayID: category.DisplayID,
		Name:      category.Name,
		NameAr:    category.NameAr,
		Image:     category.Image,
		IconName:  category.IconName,
		Products:  encodeProducts(category.Products),
		Version:   category.Version,
		UpdatedAt: category.UpdatedAt,
	}, nil
}

func encodeProducts(products []domain.Product) []productDocument {
	out := make([]productDocument, 0, len(products))
	for _, product := range products {
		out = append(out, productDocument{
			ID:            product.ID,
			Name:          product.Name,
			NameAr:        product.NameAr,
			Description:   product.Description,
			DescriptionAr: product.DescriptionAr,
			Price:         product.Price,
			Image:         product.Image,
			Features:      nonNil(product.Features),
			FeaturesAr:    nonNil(product.FeaturesAr),
		})
	}
	return out
}

func decodeCategory(snap *firestore.DocumentSnapshot) (domain.Category, error) {
	data := snap.Data()
	if data == nil {
		return domain.Category{}, fmt.Errorf("category %s has no data", snap.Ref.ID)
	}
	category := domain.Category{
		DisplayID: intField(data, "displayId"),
		Name:      stringField(data, "name"),
		NameAr:    stringField(data, "nameAr"),
		Image:     stringField(data, "image"),
		IconName:  stringField(data, "iconName"),
		Version:   int64Field(data, "version"),
		UpdatedAt: timeField(data, "updatedAt"),
	}
	rawProducts := mapSliceField(data, "products")
	category.Products = make([]domain.Product, 0, len(rawProducts))
	for _, raw := range rawProducts {
		category.Products = append(category.Products, domain.Product{
			ID:            stringField(raw, "id"),
			Name:          stringField(raw, "name"),
			NameAr:        stringField(raw, "nameAr"),
			Description:   stringField(raw, "description"),
			DescriptionAr: stringField(raw, "descriptionAr"),
			Price:         stringField(raw, "price"),
			Image:         stringField(raw, "image"),
			Features:      stringSliceField(raw, "features"),
			FeaturesAr:    stringSliceField(raw, "featuresAr"),
		})
	}
	return category, nil
}
