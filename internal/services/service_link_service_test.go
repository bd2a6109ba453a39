package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

func newTestLinkService(t *testing.T, store *memoryStore, publisher *recordingPublisher) ServiceLinkService {
	t.Helper()
	svc, err := NewServiceLinkService(ServiceLinkServiceDeps{
		Links:      store.Links(),
		Categories: store.Categories(),
		Offerings:  testOfferings(),
		Events:     publisher,
		Clock:      testClock,
	})
	require.NoError(t, err)
	return svc
}

func TestSetLinksNormalisesIDs(t *testing.T) {
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	svc := newTestLinkService(t, store, publisher)

	link, err := svc.SetLinks(context.Background(), SetLinksCommand{
		ServiceID:  3,
		ProductIDs: []string{" p2 ", "p1", "", "p2", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "ghost"}, link.ProductIDs)
	assert.Equal(t, "service_3", link.DocumentID)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, CatalogEventServiceLinksSet, publisher.events[0].Kind)
	assert.Equal(t, 3, publisher.events[0].ServiceID)
}

func TestLinksRejectUnknownService(t *testing.T) {
	svc := newTestLinkService(t, newMemoryStore(), &recordingPublisher{})
	ctx := context.Background()

	for _, id := range []int{0, 8, -1} {
		_, err := svc.GetLinks(ctx, id)
		assert.ErrorIs(t, err, ErrUnknownService, "get %d", id)
		_, err = svc.SetLinks(ctx, SetLinksCommand{ServiceID: id})
		assert.ErrorIs(t, err, ErrUnknownService, "set %d", id)
		_, err = svc.ServiceProducts(ctx, id)
		assert.ErrorIs(t, err, ErrUnknownService, "products %d", id)
	}
}

func TestGetLinksWithoutDocumentIsEmpty(t *testing.T) {
	svc := newTestLinkService(t, newMemoryStore(), &recordingPublisher{})

	link, err := svc.GetLinks(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, link.ProductIDs)
	assert.Empty(t, link.ProductIDs)
	assert.Equal(t, "service_1", link.DocumentID)
}

func TestSetLinksEmptyClearsMapping(t *testing.T) {
	store := newMemoryStore()
	svc := newTestLinkService(t, store, &recordingPublisher{})
	ctx := context.Background()

	_, err := svc.SetLinks(ctx, SetLinksCommand{ServiceID: 2, ProductIDs: []string{"p1"}})
	require.NoError(t, err)
	link, err := svc.SetLinks(ctx, SetLinksCommand{ServiceID: 2})
	require.NoError(t, err)
	assert.Empty(t, link.ProductIDs)
}

func TestResolveServiceProducts(t *testing.T) {
	store := newMemoryStore()
	store.seed(
		domain.Category{ID: "b", DisplayID: 1, Products: []domain.Product{product("p1", "Door Lock copy"), product("p3", "Camera")}},
		domain.Category{ID: "a", DisplayID: 2, Products: []domain.Product{product("p2", "Hub"), product("p1", "Door Lock")}},
	)
	svc := newTestLinkService(t, store, &recordingPublisher{})
	ctx := context.Background()

	_, err := svc.SetLinks(ctx, SetLinksCommand{ServiceID: 1, ProductIDs: []string{"p3", "deleted", "p1"}})
	require.NoError(t, err)

	resolved, err := svc.ResolveServiceProducts(ctx)
	require.NoError(t, err)
	require.Len(t, resolved, len(testOfferings().Services()))

	assert.Equal(t, 1, resolved[0].Service.ID)
	names := make([]string, 0, len(resolved[0].Products))
	for _, p := range resolved[0].Products {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Door Lock", "Door Lock copy", "Camera"}, names, "catalog order in store iteration, every copy of a shared id")

	for _, entry := range resolved[1:] {
		assert.NotNil(t, entry.Products)
		assert.Empty(t, entry.Products)
	}

	single, err := svc.ServiceProducts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, resolved[0], single)
}

func TestServiceProductsIgnoresLinkOrder(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Category{ID: "locks", Products: []domain.Product{product("A", "Deadbolt"), product("B", "Keypad")}})
	svc := newTestLinkService(t, store, &recordingPublisher{})
	ctx := context.Background()

	_, err := svc.SetLinks(ctx, SetLinksCommand{ServiceID: 1, ProductIDs: []string{"B", "A"}})
	require.NoError(t, err)

	resolved, err := svc.ServiceProducts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, resolved.Products, 2)
	assert.Equal(t, "A", resolved.Products[0].ID)
	assert.Equal(t, "B", resolved.Products[1].ID)
}

func TestResolveServiceProductsPropagatesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.fail = true
	svc := newTestLinkService(t, store, &recordingPublisher{})

	_, err := svc.ResolveServiceProducts(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}
