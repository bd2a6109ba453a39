//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/platform/firestore/firestoretest"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t, "platform-test")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[sampleEntity](provider, "samples", nil, nil)

	if _, err := repo.Set(ctx, "sample-b", sampleEntity{Name: "beta", Count: 1}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	createdID, _, err := repo.Create(ctx, sampleEntity{Name: "auto"})
	if err != nil || createdID == "" {
		t.Fatalf("create failed: id=%q err=%v", createdID, err)
	}
	if _, err := repo.Set(ctx, "sample-a", sampleEntity{Name: "alpha"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, err := repo.Update(ctx, "sample-b", []firestore.Update{{Path: "count", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	doc, err := repo.Get(ctx, "sample-b")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Count != 2 || doc.UpdateTime.IsZero() {
		t.Fatalf("unexpected document: %#v", doc)
	}

	docs, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i-1].ID > docs[i].ID {
			t.Fatalf("expected document id order, got %s before %s", docs[i-1].ID, docs[i].ID)
		}
	}

	_, err = repo.Get(ctx, "missing")
	var repoErr *pfirestore.Error
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found repository error, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := repo.GetTx(ctx, tx, "sample-b")
		if err != nil {
			return err
		}
		current.Data.Count++
		return repo.SetTx(ctx, tx, "sample-b", current.Data)
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if doc, _ = repo.Get(ctx, "sample-b"); doc.Data.Count != 3 {
		t.Fatalf("expected count=3 after txn, got %d", doc.Data.Count)
	}

	sentinel := errors.New("abort")
	if err := provider.RunTransaction(ctx, func(context.Context, *firestore.Transaction) error {
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to pass through, got %v", err)
	}

	if err := repo.Delete(ctx, "sample-a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "sample-a", firestore.Exists); err == nil {
		t.Fatalf("expected delete with Exists precondition to fail")
	}

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
