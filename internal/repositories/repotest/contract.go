// Package repotest holds behaviour checks shared by every repositories.Registry implementation.
package repotest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// Factory returns an empty registry. Implementations register their own cleanup.
type Factory func(t *testing.T) repositories.Registry

// Run exercises the registry contract against fresh registries produced by newRegistry.
func Run(t *testing.T, newRegistry Factory) {
	t.Run("categories", func(t *testing.T) { testCategories(t, newRegistry(t)) })
	t.Run("products", func(t *testing.T) { testProducts(t, newRegistry(t)) })
	t.Run("service_links", func(t *testing.T) { testServiceLinks(t, newRegistry(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newRegistry(t)) })
}

func testCategories(t *testing.T, registry repositories.Registry) {
	ctx := context.Background()
	repo := registry.Categories()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	created, err := repo.Create(ctx, domain.Category{DisplayID: 2, Name: "Sensors", NameAr: "حساسات", IconName: "Radar"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.NotNil(t, created.Products)

	second, err := repo.Create(ctx, domain.Category{DisplayID: 1, Name: "Locks", IconName: "Lock"})
	require.NoError(t, err)

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	ids := []string{listed[0].ID, listed[1].ID}
	assert.True(t, sort.StringsAreSorted(ids), "expected document id order, got %v", ids)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sensors", got.Name)
	assert.Equal(t, "حساسات", got.NameAr)
	assert.Equal(t, 2, got.DisplayID)
	assert.Empty(t, got.Products)

	name := "Smart Sensors"
	image := "https://cdn.example.com/sensors.png"
	updated, err := repo.UpdateFields(ctx, created.ID, repositories.CategoryFieldUpdate{Name: &name, Image: &image})
	require.NoError(t, err)
	assert.Equal(t, "Smart Sensors", updated.Name)
	assert.Equal(t, "حساسات", updated.NameAr)
	assert.Equal(t, image, updated.Image)
	assert.Equal(t, created.Version, updated.Version)

	_, err = repo.UpdateFields(ctx, "missing", repositories.CategoryFieldUpdate{Name: &name})
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, repo.Delete(ctx, second.ID))
	_, err = repo.Get(ctx, second.ID)
	assert.True(t, repositories.IsNotFound(err), "expected deleted category to be gone, got %v", err)

	err = repo.Delete(ctx, second.ID)
	assert.True(t, repositories.IsNotFound(err), "expected not found on second delete, got %v", err)
}

func testProducts(t *testing.T, registry repositories.Registry) {
	ctx := context.Background()
	repo := registry.Categories()

	category, err := repo.Create(ctx, domain.Category{DisplayID: 1, Name: "Cameras"})
	require.NoError(t, err)

	appendProduct := func(id string) repositories.ProductMutation {
		return func(current domain.Category) ([]domain.Product, error) {
			return append(current.Products, domain.Product{ID: id, Name: id, Features: []string{"4K"}}), nil
		}
	}

	after, err := repo.MutateProducts(ctx, category.ID, 0, appendProduct("p1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Version)
	require.Len(t, after.Products, 1)

	after, err = repo.MutateProducts(ctx, category.ID, after.Version, appendProduct("p2"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.Version)

	_, err = repo.MutateProducts(ctx, category.ID, 2, appendProduct("stale"))
	require.Error(t, err)
	assert.True(t, repositories.IsConflict(err), "expected conflict, got %v", err)
	assert.True(t, errors.Is(err, repositories.ErrVersionMismatch))

	boom := errors.New("boom")
	_, err = repo.MutateProducts(ctx, category.ID, 0, func(domain.Category) ([]domain.Product, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repo.Get(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	require.Len(t, stored.Products, 2)
	assert.Equal(t, "p1", stored.Products[0].ID)
	assert.Equal(t, "p2", stored.Products[1].ID)
	assert.Equal(t, []string{"4K"}, stored.Products[0].Features)

	_, err = repo.MutateProducts(ctx, "missing", 0, appendProduct("x"))
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)
}

func testServiceLinks(t *testing.T, registry repositories.Registry) {
	ctx := context.Background()
	repo := registry.ServiceLinks()

	_, err := repo.Get(ctx, 3)
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, repo.Set(ctx, domain.ServiceProductLink{ServiceID: 3, ProductIDs: []string{"b", "a"}}))
	link, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, link.ServiceID)
	assert.Equal(t, "service_3", link.DocumentID)
	assert.Equal(t, []string{"b", "a"}, link.ProductIDs)

	require.NoError(t, repo.Set(ctx, domain.ServiceProductLink{ServiceID: 3, ProductIDs: []string{}}))
	link, err = repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, link.ProductIDs)

	require.NoError(t, repo.Set(ctx, domain.ServiceProductLink{ServiceID: 1, ProductIDs: []string{"c"}}))
	links, err := repo.List(ctx)
	require.NoError(t, err)
	byService := map[int][]string{}
	for _, l := range links {
		byService[l.ServiceID] = l.ProductIDs
	}
	assert.Len(t, byService, 2)
	assert.Equal(t, []string{"c"}, byService[1])
}

func testSettings(t *testing.T, registry repositories.Registry) {
	ctx := context.Background()
	repo := registry.Settings()

	_, err := repo.FeaturedCategories(ctx)
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)
	_, err = repo.HeroBackgrounds(ctx)
	assert.True(t, repositories.IsNotFound(err), "expected not found, got %v", err)

	require.NoError(t, repo.SaveFeaturedCategories(ctx, domain.FeaturedCategories{CategoryIDs: []string{"z", "a"}}))
	featured, err := repo.FeaturedCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, featured.CategoryIDs)
	assert.False(t, featured.UpdatedAt.IsZero())

	require.NoError(t, repo.SaveHeroBackgrounds(ctx, domain.HeroBackgrounds{Images: []string{"/a.jpg"}}))
	hero, err := repo.HeroBackgrounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.jpg"}, hero.Images)
}
