package repositories

import (
	"context"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Categories() CategoryRepository
	ServiceLinks() ServiceLinkRepository
	Settings() SettingsRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CategoryFieldUpdate carries the category fields editable outside the product list.
// Nil fields are left untouched.
type CategoryFieldUpdate struct {
	Name   *string
	NameAr *string
	Image  *string
}

// Empty reports whether the update changes nothing.
func (u CategoryFieldUpdate) Empty() bool {
	return u.Name == nil && u.NameAr == nil && u.Image == nil
}

// ProductMutation computes the replacement product list from the current category state.
// Returning an error aborts the write.
type ProductMutation func(current domain.Category) ([]domain.Product, error)

// CategoryRepository persists category documents including their embedded product lists.
type CategoryRepository interface {
	// List returns every category in store iteration order (document id ascending).
	List(ctx context.Context) ([]domain.Category, error)
	Get(ctx context.Context, categoryID string) (domain.Category, error)
	// Create stores a new category under a store-assigned id and returns it.
	Create(ctx context.Context, category domain.Category) (domain.Category, error)
	UpdateFields(ctx context.Context, categoryID string, update CategoryFieldUpdate) (domain.Category, error)
	Delete(ctx context.Context, categoryID string) error
	// MutateProducts atomically replaces the product list. A positive expectedVersion must match
	// the stored version or a conflict error is returned.
	MutateProducts(ctx context.Context, categoryID string, expectedVersion int64, mutate ProductMutation) (domain.Category, error)
}

// ServiceLinkRepository stores service_products mapping documents.
type ServiceLinkRepository interface {
	// Get returns a not found error when the service has no mapping document.
	Get(ctx context.Context, serviceID int) (domain.ServiceProductLink, error)
	Set(ctx context.Context, link domain.ServiceProductLink) error
	List(ctx context.Context) ([]domain.ServiceProductLink, error)
}

// SettingsRepository stores singleton documents under the settings collection.
type SettingsRepository interface {
	FeaturedCategories(ctx context.Context) (domain.FeaturedCategories, error)
	SaveFeaturedCategories(ctx context.Context, setting domain.FeaturedCategories) error
	HeroBackgrounds(ctx context.Context) (domain.HeroBackgrounds, error)
	SaveHeroBackgrounds(ctx context.Context, setting domain.HeroBackgrounds) error
}

// HealthRepository probes backing services for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
