// Package resilient decorates a repositories.Registry with a circuit breaker on read paths.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

// Settings tunes when the breaker opens.
type Settings struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	// OnStateChange is notified on transitions, typically to log them.
	OnStateChange func(name string, from, to string)
}

// Registry wraps an inner registry. Writes pass straight through so a tripped breaker never blocks
// admin edits.
type Registry struct {
	inner      repositories.Registry
	breaker    *gobreaker.CircuitBreaker[any]
	categories *categoryRepository
	links      *serviceLinkRepository
	settings   *settingsRepository
}

var _ repositories.Registry = (*Registry)(nil)

// Wrap returns a registry whose read operations share one circuit breaker.
func Wrap(inner repositories.Registry, settings Settings) *Registry {
	if settings.Name == "" {
		settings.Name = "catalog-store"
	}
	if settings.MinRequests == 0 {
		settings.MinRequests = 5
	}
	if settings.FailureRatio <= 0 || settings.FailureRatio > 1 {
		settings.FailureRatio = 0.6
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:    settings.Name,
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: countsAsSuccess,
	}
	if notify := settings.OnStateChange; notify != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(name, from.String(), to.String())
		}
	}

	cb := gobreaker.NewCircuitBreaker[any](st)
	return &Registry{
		inner:      inner,
		breaker:    cb,
		categories: &categoryRepository{inner: inner.Categories(), cb: cb},
		links:      &serviceLinkRepository{inner: inner.ServiceLinks(), cb: cb},
		settings:   &settingsRepository{inner: inner.Settings(), cb: cb},
	}
}

// State reports the breaker state name (closed, half-open, open).
func (r *Registry) State() string {
	return r.breaker.State().String()
}

func (r *Registry) Categories() repositories.CategoryRepository     { return r.categories }
func (r *Registry) ServiceLinks() repositories.ServiceLinkRepository { return r.links }
func (r *Registry) Settings() repositories.SettingsRepository       { return r.settings }
func (r *Registry) Health() repositories.HealthRepository           { return r.inner.Health() }

func (r *Registry) Close(ctx context.Context) error {
	return r.inner.Close(ctx)
}

// Missing documents and caller cancellations say nothing about store health.
func countsAsSuccess(err error) bool {
	return err == nil ||
		repositories.IsNotFound(err) ||
		errors.Is(err, context.Canceled)
}

func guarded[T any](cb *gobreaker.CircuitBreaker[any], op string, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, repositories.NewUnavailableError(op, err)
		}
		return zero, err
	}
	return out.(T), nil
}

type categoryRepository struct {
	inner repositories.CategoryRepository
	cb    *gobreaker.CircuitBreaker[any]
}

func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	return guarded(r.cb, "categories.list", func() ([]domain.Category, error) { return r.inner.List(ctx) })
}

func (r *categoryRepository) Get(ctx context.Context, categoryID string) (domain.Category, error) {
	return guarded(r.cb, "categories.get", func() (domain.Category, error) { return r.inner.Get(ctx, categoryID) })
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) (domain.Category, error) {
	return r.inner.Create(ctx, category)
}

func (r *categoryRepository) UpdateFields(ctx context.Context, categoryID string, update repositories.CategoryFieldUpdate) (domain.Category, error) {
	return r.inner.UpdateFields(ctx, categoryID, update)
}

func (r *categoryRepository) Delete(ctx context.Context, categoryID string) error {
	return r.inner.Delete(ctx, categoryID)
}

func (r *categoryRepository) MutateProducts(ctx context.Context, categoryID string, expectedVersion int64, mutate repositories.ProductMutation) (domain.Category, error) {
	return r.inner.MutateProducts(ctx, categoryID, expectedVersion, mutate)
}

type serviceLinkRepository struct {
	inner repositories.ServiceLinkRepository
	cb    *gobreaker.CircuitBreaker[any]
}

func (r *serviceLinkRepository) Get(ctx context.Context, serviceID int) (domain.ServiceProductLink, error) {
	return guarded(r.cb, "service_products.get", func() (domain.ServiceProductLink, error) { return r.inner.Get(ctx, serviceID) })
}

func (r *serviceLinkRepository) Set(ctx context.Context, link domain.ServiceProductLink) error {
	return r.inner.Set(ctx, link)
}

func (r *serviceLinkRepository) List(ctx context.Context) ([]domain.ServiceProductLink, error) {
	return guarded(r.cb, "service_products.list", func() ([]domain.ServiceProductLink, error) { return r.inner.List(ctx) })
}

type settingsRepository struct {
	inner repositories.SettingsRepository
	cb    *gobreaker.CircuitBreaker[any]
}

func (r *settingsRepository) FeaturedCategories(ctx context.Context) (domain.FeaturedCategories, error) {
	return guarded(r.cb, "settings.featured", func() (domain.FeaturedCategories, error) { return r.inner.FeaturedCategories(ctx) })
}

func (r *settingsRepository) SaveFeaturedCategories(ctx context.Context, setting domain.FeaturedCategories) error {
	return r.inner.SaveFeaturedCategories(ctx, setting)
}

func (r *settingsRepository) HeroBackgrounds(ctx context.Context) (domain.HeroBackgrounds, error) {
	return guarded(r.cb, "settings.hero", func() (domain.HeroBackgrounds, error) { return r.inner.HeroBackgrounds(ctx) })
}

func (r *settingsRepository) SaveHeroBackgrounds(ctx context.Context, setting domain.HeroBackgrounds) error {
	return r.inner.SaveHeroBackgrounds(ctx, setting)
}
