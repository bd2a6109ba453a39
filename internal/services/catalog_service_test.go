package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

func newTestCatalogService(t *testing.T, store *memoryStore, publisher *recordingPublisher) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Categories: store.Categories(),
		Events:     publisher,
		Clock:      testClock,
	})
	require.NoError(t, err)
	return svc
}

func TestNewCatalogServiceRequiresRepository(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}

func TestListCategoriesOrdersByDisplayID(t *testing.T) {
	store := newMemoryStore()
	store.seed(
		domain.Category{ID: "a", DisplayID: 3, Name: "Locks"},
		domain.Category{ID: "c", DisplayID: 1, Name: "Sensors"},
		domain.Category{ID: "b", DisplayID: 1, Name: "Cameras"},
	)
	svc := newTestCatalogService(t, store, &recordingPublisher{})

	categories, err := svc.ListCategories(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(categories))
	for _, category := range categories {
		ids = append(ids, category.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
}

func TestCreateCategoryDefaults(t *testing.T) {
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	svc := newTestCatalogService(t, store, publisher)
	ctx := context.Background()

	first, err := svc.CreateCategory(ctx, CreateCategoryCommand{Name: "  Smart Locks ", NameAr: "أقفال ذكية"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.DisplayID)
	assert.Equal(t, "Smart Locks", first.Name)
	assert.Equal(t, domain.DefaultCategoryIcon, first.IconName)
	assert.Empty(t, first.Products)
	assert.NotNil(t, first.Products)

	store.seed(domain.Category{ID: "z", DisplayID: 9, Name: "Gateways"})
	second, err := svc.CreateCategory(ctx, CreateCategoryCommand{Name: "Cameras", IconName: "Camera"})
	require.NoError(t, err)
	assert.Equal(t, 10, second.DisplayID)
	assert.Equal(t, "Camera", second.IconName)

	explicit := 4
	third, err := svc.CreateCategory(ctx, CreateCategoryCommand{Name: "Hubs", DisplayID: &explicit})
	require.NoError(t, err)
	assert.Equal(t, 4, third.DisplayID)

	assert.Equal(t, []string{CatalogEventCategoryCreated, CatalogEventCategoryCreated, CatalogEventCategoryCreated}, publisher.kinds())
}

func TestCreateCategoryValidation(t *testing.T) {
	svc := newTestCatalogService(t, newMemoryStore(), &recordingPublisher{})
	ctx := context.Background()
	negative := -1

	cases := []struct {
		name string
		cmd  CreateCategoryCommand
	}{
		{name: "missing name", cmd: CreateCategoryCommand{NameAr: "اسم"}},
		{name: "markup only name", cmd: CreateCategoryCommand{Name: "<b></b>"}},
		{name: "negative display id", cmd: CreateCategoryCommand{Name: "Locks", DisplayID: &negative}},
		{name: "bad image scheme", cmd: CreateCategoryCommand{Name: "Locks", Image: "ftp://example.com/a.png"}},
		{name: "protocol relative image", cmd: CreateCategoryCommand{Name: "Locks", Image: "//cdn.example.com/a.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateCategory(ctx, tc.cmd)
			if !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCreateCategoryStripsMarkup(t *testing.T) {
	svc := newTestCatalogService(t, newMemoryStore(), &recordingPublisher{})
	created, err := svc.CreateCategory(context.Background(), CreateCategoryCommand{
		Name:  "<script>alert(1)</script>Switches & Relays",
		Image: "/hero-lock.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Switches & Relays", created.Name)
	assert.Equal(t, "/hero-lock.jpg", created.Image)
}

func TestUpdateCategoryTouchesOnlyGivenFields(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Category{
		ID: "cat", DisplayID: 2, Name: "Locks", NameAr: "أقفال", Image: "/a.jpg", IconName: "Lock",
		Products: []domain.Product{product("p1", "Door Lock")},
	})
	publisher := &recordingPublisher{}
	svc := newTestCatalogService(t, store, publisher)

	name := "Smart Locks"
	updated, err := svc.UpdateCategory(context.Background(), UpdateCategoryCommand{CategoryID: "cat", Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Smart Locks", updated.Name)
	assert.Equal(t, "أقفال", updated.NameAr)
	assert.Equal(t, "/a.jpg", updated.Image)
	assert.Equal(t, "Lock", updated.IconName)
	assert.Len(t, updated.Products, 1)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, []string{CatalogEventCategoryUpdated}, publisher.kinds())
}

func TestUpdateCategoryErrors(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Category{ID: "cat", Name: "Locks"})
	svc := newTestCatalogService(t, store, &recordingPublisher{})
	ctx := context.Background()

	empty := "   "
	_, err := svc.UpdateCategory(ctx, UpdateCategoryCommand{CategoryID: "cat", Name: &empty})
	assert.ErrorIs(t, err, ErrCatalogInvalidInput)

	name := "Cameras"
	_, err = svc.UpdateCategory(ctx, UpdateCategoryCommand{CategoryID: "missing", Name: &name})
	assert.ErrorIs(t, err, ErrCatalogNotFound)

	_, err = svc.UpdateCategory(ctx, UpdateCategoryCommand{Name: &name})
	assert.ErrorIs(t, err, ErrCatalogInvalidInput)
}

func TestDeleteCategory(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Category{ID: "cat", Name: "Locks"})
	publisher := &recordingPublisher{}
	svc := newTestCatalogService(t, store, publisher)
	ctx := context.Background()

	require.NoError(t, svc.DeleteCategory(ctx, "cat"))
	_, err := svc.GetCategory(ctx, "cat")
	assert.ErrorIs(t, err, ErrCatalogNotFound)

	err = svc.DeleteCategory(ctx, "cat")
	assert.ErrorIs(t, err, ErrCatalogNotFound)
	assert.Equal(t, []string{CatalogEventCategoryDeleted}, publisher.kinds())
}

func TestCatalogServiceMapsUnavailable(t *testing.T) {
	store := newMemoryStore()
	store.fail = true
	svc := newTestCatalogService(t, store, &recordingPublisher{})

	_, err := svc.ListCategories(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestEventPublishFailureIsLogged(t *testing.T) {
	store := newMemoryStore()
	logs := &logRecorder{}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Categories: store.Categories(),
		Events:     &recordingPublisher{err: errors.New("topic gone")},
		Logger:     logs.log,
		Clock:      testClock,
	})
	require.NoError(t, err)

	_, err = svc.CreateCategory(context.Background(), CreateCategoryCommand{Name: "Locks"})
	require.NoError(t, err)
	assert.Contains(t, logs.events(), "catalog.event.publish_failed")
}

func TestNextDisplayID(t *testing.T) {
	assert.Equal(t, 1, NextDisplayID(nil))
	assert.Equal(t, 8, NextDisplayID([]Category{{DisplayID: 7}, {DisplayID: 2}}))
	assert.Equal(t, 1, NextDisplayID([]Category{{DisplayID: 0}}))
}
