package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

func TestAuditReferencesFindsDanglingData(t *testing.T) {
	store := newMemoryStore()
	store.seed(
		domain.Category{ID: "a", DisplayID: 1, Products: []domain.Product{product("p1", "Lock"), product("p1", "Lock copy"), product("p2", "Hub")}},
		domain.Category{ID: "b", DisplayID: 2, Products: []domain.Product{product("p3", "Camera")}},
	)
	store.links[1] = domain.ServiceProductLink{ServiceID: 1, ProductIDs: []string{"p1", "gone"}}
	store.links[42] = domain.ServiceProductLink{ServiceID: 42, DocumentID: "service_42", ProductIDs: []string{"p2"}}
	store.featured = &domain.FeaturedCategories{CategoryIDs: []string{"b", "deleted"}}
	logs := &logRecorder{}

	svc, err := NewReferenceAuditService(ReferenceAuditServiceDeps{
		Categories: store.Categories(),
		Links:      store.Links(),
		Settings:   store.Settings(),
		Offerings:  testOfferings(),
		Clock:      testClock,
		Logger:     logs.log,
	})
	require.NoError(t, err)

	report, err := svc.AuditReferences(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testNow, report.CheckedAt)
	assert.Equal(t, 2, report.CategoryCount)
	assert.Equal(t, 4, report.ProductCount)
	assert.Equal(t, []string{"deleted"}, report.MissingFeatured)
	assert.Equal(t, []domain.DanglingLink{{ServiceID: 1, ProductID: "gone"}}, report.DanglingLinks)
	assert.Equal(t, []string{"service_42"}, report.UnknownServiceLinks)
	assert.Equal(t, []domain.DuplicateProduct{{CategoryID: "a", ProductID: "p1", Count: 2}}, report.DuplicateProductIDs)
	assert.False(t, report.Clean())
	assert.Equal(t, []string{"catalog.audit.dangling_references"}, logs.events())
}

func TestAuditReferencesCleanCatalog(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Category{ID: "a", Products: []domain.Product{product("p1", "Lock")}})
	logs := &logRecorder{}
	svc, err := NewReferenceAuditService(ReferenceAuditServiceDeps{
		Categories: store.Categories(),
		Links:      store.Links(),
		Settings:   store.Settings(),
		Offerings:  testOfferings(),
		Logger:     logs.log,
	})
	require.NoError(t, err)

	report, err := svc.AuditReferences(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.NotNil(t, report.MissingFeatured)
	assert.Empty(t, logs.events())
}

func TestAuditReferencesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.fail = true
	svc, err := NewReferenceAuditService(ReferenceAuditServiceDeps{
		Categories: store.Categories(),
		Links:      store.Links(),
		Settings:   store.Settings(),
		Offerings:  testOfferings(),
	})
	require.NoError(t, err)

	_, err = svc.AuditReferences(context.Background())
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}
