package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const (
	settingsCollection        = "settings"
	featuredCategoriesDocID   = "featured_categories"
	heroBackgroundsDocumentID = "hero_backgrounds"
)

// SettingsRepository reads and writes singleton documents in the settings collection.
type SettingsRepository struct {
	featured *pfirestore.BaseRepository[domain.FeaturedCategories]
	hero     *pfirestore.BaseRepository[domain.HeroBackgrounds]
	clock    func() time.Time
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider, clock func() time.Time) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SettingsRepository{
		featured: pfirestore.NewBaseRepository[domain.FeaturedCategories](provider, settingsCollection,
			func(setting domain.FeaturedCategories) (any, error) {
				return map[string]any{"categoryIds": nonNil(setting.CategoryIDs), "updatedAt": setting.UpdatedAt}, nil
			},
			func(snap *firestore.DocumentSnapshot) (domain.FeaturedCategories, error) {
				data := snap.Data()
				return domain.FeaturedCategories{
					CategoryIDs: stringSliceField(data, "categoryIds"),
					UpdatedAt:   timeField(data, "updatedAt"),
				}, nil
			}),
		hero: pfirestore.NewBaseRepository[domain.HeroBackgrounds](provider, settingsCollection,
			func(setting domain.HeroBackgrounds) (any, error) {
				return map[string]any{"images": nonNil(setting.Images), "updatedAt": setting.UpdatedAt}, nil
			},
			func(snap *firestore.DocumentSnapshot) (domain.HeroBackgrounds, error) {
				data := snap.Data()
				return domain.HeroBackgrounds{
					Images:    stringSliceField(data, "images"),
					UpdatedAt: timeField(data, "updatedAt"),
				}, nil
			}),
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

func (r *SettingsRepository) FeaturedCategories(ctx context.Context) (domain.FeaturedCategories, error) {
	doc, err := r.featured.Get(ctx, featuredCategoriesDocID)
	if err != nil {
		return domain.FeaturedCategories{}, err
	}
	return doc.Data, nil
}

func (r *SettingsRepository) SaveFeaturedCategories(ctx context.Context, setting domain.FeaturedCategories) error {
	setting.UpdatedAt = r.clock()
	_, err := r.featured.Set(ctx, featuredCategoriesDocID, setting)
	return err
}

func (r *SettingsRepository) HeroBackgrounds(ctx context.Context) (domain.HeroBackgrounds, error) {
	doc, err := r.hero.Get(ctx, heroBackgroundsDocumentID)
	if err != nil {
		return domain.HeroBackgrounds{}, err
	}
	return doc.Data, nil
}

func (r *SettingsRepository) SaveHeroBackgrounds(ctx context.Context, setting domain.HeroBackgrounds) error {
	setting.UpdatedAt = r.clock()
	_, err := r.hero.Set(ctx, heroBackgroundsDocumentID, setting)
	return err
}
