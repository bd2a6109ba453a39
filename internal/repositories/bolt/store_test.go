package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
	"github.com/nirvana-iot/catalog-api/internal/repositories/repotest"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := Open(filepath.Join(t.TempDir(), "catalog.db"), func() time.Time {
		return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	return registry
}

func TestRegistryContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repositories.Registry {
		return openTestRegistry(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	registry, err := Open(path, nil)
	require.NoError(t, err)
	created, err := registry.Categories().Create(context.Background(), domain.Category{Name: "Hubs", DisplayID: 4})
	require.NoError(t, err)
	require.NoError(t, registry.Close(context.Background()))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close(context.Background())

	got, err := reopened.Categories().Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Hubs", got.Name)
	require.Equal(t, 4, got.DisplayID)
}

func TestListSkipsUnparseableServiceKeys(t *testing.T) {
	registry := openTestRegistry(t)
	err := registry.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketServiceLinks), "legacy", serviceLinkRecord{ProductIDs: []string{"x"}})
	})
	require.NoError(t, err)

	links, err := registry.ServiceLinks().List(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, 0, links[0].ServiceID)
	require.Equal(t, "legacy", links[0].DocumentID)
}

func TestHealthReportsBolt(t *testing.T) {
	registry := openTestRegistry(t)
	report, err := registry.Health().Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusOK, report.Status)
	require.Contains(t, report.Checks, "bolt")
}

func TestCancelledContextRejected(t *testing.T) {
	registry := openTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Categories().List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
