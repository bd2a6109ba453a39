package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/offerings"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

var testNow = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

var errStoreDown = repositories.NewUnavailableError("memory", errors.New("store down"))

// memoryStore implements the category, link and settings repositories in memory.
// Setting fail makes every call return errStoreDown.
type memoryStore struct {
	mu         sync.Mutex
	categories map[string]domain.Category
	links      map[int]domain.ServiceProductLink
	featured   *domain.FeaturedCategories
	hero       *domain.HeroBackgrounds
	nextID     int
	fail       bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		categories: map[string]domain.Category{},
		links:      map[int]domain.ServiceProductLink{},
	}
}

func (m *memoryStore) seed(categories ...domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, category := range categories {
		if category.Version == 0 {
			category.Version = 1
		}
		m.categories[category.ID] = category
	}
}

func (m *memoryStore) check() error {
	if m.fail {
		return errStoreDown
	}
	return nil
}

type memoryCategories struct{ *memoryStore }
type memoryLinks struct{ *memoryStore }
type memorySettings struct{ *memoryStore }

func (m *memoryStore) Categories() repositories.CategoryRepository { return memoryCategories{m} }
func (m *memoryStore) Links() repositories.ServiceLinkRepository    { return memoryLinks{m} }
func (m *memoryStore) Settings() repositories.SettingsRepository    { return memorySettings{m} }

func (r memoryCategories) List(context.Context) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.categories))
	for id := range r.categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.categories[id])
	}
	return out, nil
}

func (r memoryCategories) Get(_ context.Context, categoryID string) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.Category{}, err
	}
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("memory.get", nil)
	}
	return category, nil
}

func (r memoryCategories) Create(_ context.Context, category domain.Category) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.Category{}, err
	}
	r.nextID++
	category.ID = fmt.Sprintf("cat-%03d", r.nextID)
	category.Version = 1
	category.UpdatedAt = testNow
	r.categories[category.ID] = category
	return category, nil
}

func (r memoryCategories) UpdateFields(_ context.Context, categoryID string, update repositories.CategoryFieldUpdate) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.Category{}, err
	}
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("memory.update", nil)
	}
	if update.Name != nil {
		category.Name = *update.Name
	}
	if update.NameAr != nil {
		category.NameAr = *update.NameAr
	}
	if update.Image != nil {
		category.Image = *update.Image
	}
	r.categories[categoryID] = category
	return category, nil
}

func (r memoryCategories) Delete(_ context.Context, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	if _, ok := r.categories[categoryID]; !ok {
		return repositories.NewNotFoundError("memory.delete", nil)
	}
	delete(r.categories, categoryID)
	return nil
}

func (r memoryCategories) MutateProducts(_ context.Context, categoryID string, expectedVersion int64, mutate repositories.ProductMutation) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.Category{}, err
	}
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.NewNotFoundError("memory.mutate", nil)
	}
	if expectedVersion > 0 && expectedVersion != category.Version {
		return domain.Category{}, repositories.NewConflictError("memory.mutate", repositories.ErrVersionMismatch)
	}
	products, err := mutate(category)
	if err != nil {
		return domain.Category{}, err
	}
	category.Products = products
	category.Version++
	r.categories[categoryID] = category
	return category, nil
}

func (r memoryLinks) Get(_ context.Context, serviceID int) (domain.ServiceProductLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.ServiceProductLink{}, err
	}
	link, ok := r.links[serviceID]
	if !ok {
		return domain.ServiceProductLink{}, repositories.NewNotFoundError("memory.links", nil)
	}
	return link, nil
}

func (r memoryLinks) Set(_ context.Context, link domain.ServiceProductLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	link.DocumentID = fmt.Sprintf("service_%d", link.ServiceID)
	link.UpdatedAt = testNow
	r.links[link.ServiceID] = link
	return nil
}

func (r memoryLinks) List(context.Context) ([]domain.ServiceProductLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return nil, err
	}
	out := make([]domain.ServiceProductLink, 0, len(r.links))
	for _, link := range r.links {
		if link.DocumentID == "" {
			link.DocumentID = fmt.Sprintf("service_%d", link.ServiceID)
		}
		out = append(out, link)
	}
	return out, nil
}

func (r memorySettings) FeaturedCategories(context.Context) (domain.FeaturedCategories, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.FeaturedCategories{}, err
	}
	if r.featured == nil {
		return domain.FeaturedCategories{}, repositories.NewNotFoundError("memory.featured", nil)
	}
	return *r.featured, nil
}

func (r memorySettings) SaveFeaturedCategories(_ context.Context, setting domain.FeaturedCategories) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	setting.UpdatedAt = testNow
	r.featured = &setting
	return nil
}

func (r memorySettings) HeroBackgrounds(context.Context) (domain.HeroBackgrounds, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return domain.HeroBackgrounds{}, err
	}
	if r.hero == nil {
		return domain.HeroBackgrounds{}, repositories.NewNotFoundError("memory.hero", nil)
	}
	return *r.hero, nil
}

func (r memorySettings) SaveHeroBackgrounds(_ context.Context, setting domain.HeroBackgrounds) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	setting.UpdatedAt = testNow
	r.hero = &setting
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []CatalogEvent
	err    error
}

func (p *recordingPublisher) PublishCatalogEvent(ctx context.Context, event CatalogEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Kind)
	}
	return out
}

type logEntry struct {
	event  string
	fields map[string]any
}

type logRecorder struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *logRecorder) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{event: event, fields: fields})
}

func (l *logRecorder) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.event)
	}
	return out
}

func testOfferings() *offerings.Catalog {
	return offerings.Default()
}

func product(id, name string) domain.Product {
	return domain.Product{ID: id, Name: name}
}
