package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	bbolt "go.etcd.io/bbolt"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

type productRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameAr        string   `json:"nameAr"`
	Description   string   `json:"description"`
	DescriptionAr string   `json:"descriptionAr"`
	Price         string   `json:"price"`
	Image         string   `json:"image"`
	Features      []string `json:"features"`
	FeaturesAr    []string `json:"featuresAr"`
}

type categoryRecord struct {
	DisplayID int             `json:"displayId"`
	Name      string          `json:"name"`
	NameAr    string          `json:"nameAr"`
	Image     string          `json:"image"`
	IconName  string          `json:"iconName"`
	Products  []productRecord `json:"products"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CategoryRepository stores categories keyed by id; bbolt key order doubles as iteration order.
type CategoryRepository struct {
	db    *bbolt.DB
	clock func() time.Time
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := view(ctx, r.db, func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCategories).ForEach(func(key, value []byte) error {
			var record categoryRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			categories = append(categories, record.toDomain(string(key)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("categories.list: %w", err)
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

func (r *CategoryRepository) Get(ctx context.Context, categoryID string) (domain.Category, error) {
	var category domain.Category
	err := view(ctx, r.db, func(tx *bbolt.Tx) error {
		record, err := loadCategory(tx, categoryID)
		if err != nil {
			return err
		}
		category = record.toDomain(strings.TrimSpace(categoryID))
		return nil
	})
	return category, err
}

func (r *CategoryRepository) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	category.ID = ulid.Make().String()
	category.Version = 1
	category.UpdatedAt = r.clock()
	if category.Products == nil {
		category.Products = []domain.Product{}
	}
	err := update(ctx, r.db, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCategories)
		if bucket.Get([]byte(category.ID)) != nil {
			return repositories.NewConflictError("categories.create", fmt.Errorf("id %s already exists", category.ID))
		}
		return putJSON(bucket, category.ID, recordFromDomain(category))
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (r *CategoryRepository) UpdateFields(ctx context.Context, categoryID string, fields repositories.CategoryFieldUpdate) (domain.Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	var category domain.Category
	err := update(ctx, r.db, func(tx *bbolt.Tx) error {
		record, err := loadCategory(tx, categoryID)
		if err != nil {
			return err
		}
		if !fields.Empty() {
			if fields.Name != nil {
				record.Name = *fields.Name
			}
			if fields.NameAr != nil {
				record.NameAr = *fields.NameAr
			}
			if fields.Image != nil {
				record.Image = *fields.Image
			}
			record.UpdatedAt = r.clock()
			if err := putJSON(tx.Bucket(bucketCategories), categoryID, record); err != nil {
				return err
			}
		}
		category = record.toDomain(categoryID)
		return nil
	})
	return category, err
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	return update(ctx, r.db, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCategories)
		if bucket.Get([]byte(categoryID)) == nil {
			return repositories.NewNotFoundError("categories.delete", nil)
		}
		return bucket.Delete([]byte(categoryID))
	})
}

// MutateProducts runs inside one bbolt write transaction, which serialises all writers.
func (r *CategoryRepository) MutateProducts(ctx context.Context, categoryID string, expectedVersion int64, mutate repositories.ProductMutation) (domain.Category, error) {
	if mutate == nil {
		return domain.Category{}, errors.New("categories.mutate_products: mutation is required")
	}
	categoryID = strings.TrimSpace(categoryID)
	var result domain.Category
	err := update(ctx, r.db, func(tx *bbolt.Tx) error {
		record, err := loadCategory(tx, categoryID)
		if err != nil {
			return err
		}
		current := record.toDomain(categoryID)
		if expectedVersion > 0 && current.Version != expectedVersion {
			return repositories.NewConflictError("categories.mutate_products",
				fmt.Errorf("%w: expected %d, stored %d", repositories.ErrVersionMismatch, expectedVersion, current.Version))
		}
		products, err := mutate(current)
		if err != nil {
			return err
		}
		current.Products = products
		current.Version++
		current.UpdatedAt = r.clock()
		if err := putJSON(tx.Bucket(bucketCategories), categoryID, recordFromDomain(current)); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return result, nil
}

func loadCategory(tx *bbolt.Tx, categoryID string) (categoryRecord, error) {
	var record categoryRecord
	key := strings.TrimSpace(categoryID)
	if key == "" {
		return record, repositories.NewNotFoundError("categories.get", errors.New("category id is required"))
	}
	found, err := getJSON(tx.Bucket(bucketCategories), key, &record)
	if err != nil {
		return record, err
	}
	if !found {
		return record, repositories.NewNotFoundError("categories.get", nil)
	}
	return record, nil
}

func recordFromDomain(category domain.Category) categoryRecord {
	record := categoryRecord{
		DisplayID: category.DisplayID,
		Name:      category.Name,
		NameAr:    category.NameAr,
		Image:     category.Image,
		IconName:  category.IconName,
		Products:  make([]productRecord, 0, len(category.Products)),
		Version:   category.Version,
		UpdatedAt: category.UpdatedAt,
	}
	for _, product := range category.Products {
		record.Products = append(record.Products, productRecord(product))
	}
	return record
}

func (r categoryRecord) toDomain(id string) domain.Category {
	category := domain.Category{
		ID:        id,
		DisplayID: r.DisplayID,
		Name:      r.Name,
		NameAr:    r.NameAr,
		Image:     r.Image,
		IconName:  r.IconName,
		Products:  make([]domain.Product, 0, len(r.Products)),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
	for _, product := range r.Products {
		category.Products = append(category.Products, domain.Product(product))
	}
	return category
}
