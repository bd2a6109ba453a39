package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nirvana-iot/catalog-api/internal/platform/config"
)

func TestSecretVersionPins(t *testing.T) {
	got := secretVersionPins("storage/signer=3, prod:sm://storage/signer=7, secret://system/healthz=latest, broken, =1")
	want := map[string]string{
		"secret://storage/signer":      "3",
		"prod:secret://storage/signer": "7",
		"secret://system/healthz":      "latest",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected pins (-want +got):\n%s", diff)
	}
}

func TestRequiredSecretNames(t *testing.T) {
	if names := requiredSecretNames(map[string]string{}); len(names) != 0 {
		t.Fatalf("expected no required secrets without a bucket, got %v", names)
	}
	names := requiredSecretNames(map[string]string{"CATALOG_STORAGE_IMAGES_BUCKET": "catalog-images"})
	if diff := cmp.Diff([]string{"Storage.SignerKey"}, names); diff != "" {
		t.Fatalf("unexpected required secrets (-want +got):\n%s", diff)
	}
}

func TestBuildInfoFromConfig(t *testing.T) {
	started := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.Config{Build: config.BuildConfig{Version: "1.2.0", CommitSHA: "deadbeef"}}

	info := buildInfoFromConfig(cfg, started)

	if info.Environment != "local" || info.Version != "1.2.0" || info.CommitSHA != "deadbeef" || !info.StartedAt.Equal(started) {
		t.Fatalf("unexpected build info: %+v", info)
	}
}

func TestTraceProjectID(t *testing.T) {
	cfg := config.Config{Firestore: config.FirestoreConfig{ProjectID: "store-project"}}
	if got := traceProjectID(cfg); got != "store-project" {
		t.Fatalf("expected firestore project fallback, got %q", got)
	}
	cfg.Firebase.ProjectID = "firebase-project"
	if got := traceProjectID(cfg); got != "firebase-project" {
		t.Fatalf("expected firebase project, got %q", got)
	}
}
