package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// Registry wires the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider     *pfirestore.Provider
	categories   *CategoryRepository
	serviceLinks *ServiceLinkRepository
	settings     *SettingsRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every catalog repository on top of one provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository, clock func() time.Time) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	categories, err := NewCategoryRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	links, err := NewServiceLinkRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	settings, err := NewSettingsRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:     provider,
		categories:   categories,
		serviceLinks: links,
		settings:     settings,
		health:       health,
	}, nil
}

func (r *Registry) Categories() repositories.CategoryRepository     { return r.categories }
func (r *Registry) ServiceLinks() repositories.ServiceLinkRepository { return r.serviceLinks }
func (r *Registry) Settings() repositories.SettingsRepository       { return r.settings }
func (r *Registry) Health() repositories.HealthRepository           { return r.health }

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
