package bolt

import (
	"context"
	"time"

	bbolt "go.etcd.io/bbolt"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const (
	featuredCategoriesKey = "featured_categories"
	heroBackgroundsKey    = "hero_backgrounds"
)

type featuredRecord struct {
	CategoryIDs []string  `json:"categoryIds"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type heroRecord struct {
	Images    []string  `json:"images"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SettingsRepository stores singleton settings documents.
type SettingsRepository struct {
	db    *bbolt.DB
	clock func() time.Time
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

func (r *SettingsRepository) FeaturedCategories(ctx context.Context) (domain.FeaturedCategories, error) {
	var record featuredRecord
	if err := r.load(ctx, featuredCategoriesKey, &record); err != nil {
		return domain.FeaturedCategories{}, err
	}
	return domain.FeaturedCategories{CategoryIDs: orEmpty(record.CategoryIDs), UpdatedAt: record.UpdatedAt}, nil
}

func (r *SettingsRepository) SaveFeaturedCategories(ctx context.Context, setting domain.FeaturedCategories) error {
	return r.store(ctx, featuredCategoriesKey, featuredRecord{CategoryIDs: orEmpty(setting.CategoryIDs), UpdatedAt: r.clock()})
}

func (r *SettingsRepository) HeroBackgrounds(ctx context.Context) (domain.HeroBackgrounds, error) {
	var record heroRecord
	if err := r.load(ctx, heroBackgroundsKey, &record); err != nil {
		return domain.HeroBackgrounds{}, err
	}
	return domain.HeroBackgrounds{Images: orEmpty(record.Images), UpdatedAt: record.UpdatedAt}, nil
}

func (r *SettingsRepository) SaveHeroBackgrounds(ctx context.Context, setting domain.HeroBackgrounds) error {
	return r.store(ctx, heroBackgroundsKey, heroRecord{Images: orEmpty(setting.Images), UpdatedAt: r.clock()})
}

func (r *SettingsRepository) load(ctx context.Context, key string, target any) error {
	return view(ctx, r.db, func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketSettings), key, target)
		if err != nil {
			return err
		}
		if !found {
			return repositories.NewNotFoundError("settings.get", nil)
		}
		return nil
	})
}

func (r *SettingsRepository) store(ctx context.Context, key string, value any) error {
	return update(ctx, r.db, func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketSettings), key, value)
	})
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
