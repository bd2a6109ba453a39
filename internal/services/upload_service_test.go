package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pstorage "github.com/nirvana-iot/catalog-api/internal/platform/storage"
)

type stubUploadSigner struct {
	req pstorage.UploadRequest
	err error
}

func (s *stubUploadSigner) SignUpload(_ context.Context, req pstorage.UploadRequest) (pstorage.SignedUpload, error) {
	s.req = req
	if s.err != nil {
		return pstorage.SignedUpload{}, s.err
	}
	return pstorage.SignedUpload{
		URL:       "https://storage.googleapis.com/signed",
		Method:    "PUT",
		ExpiresAt: testNow.Add(15 * time.Minute),
		Headers:   map[string]string{"Content-Type": req.ContentType},
	}, nil
}

func newTestUploadService(t *testing.T, signer UploadSigner) UploadService {
	t.Helper()
	svc, err := NewUploadService(UploadServiceDeps{
		Signer:   signer,
		Bucket:   "catalog-images",
		MaxBytes: 1024,
		TTL:      15 * time.Minute,
		NewID:    func() string { return "01HX" },
	})
	require.NoError(t, err)
	return svc
}

func TestIssueImageUpload(t *testing.T) {
	signer := &stubUploadSigner{}
	svc := newTestUploadService(t, signer)

	upload, err := svc.IssueImageUpload(context.Background(), ImageUploadCommand{
		Kind:        "product",
		FileName:    "Door Lock.PNG",
		ContentType: "image/png",
		SizeBytes:   512,
		ActorID:     "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "PUT", upload.Method)
	assert.True(t, strings.HasPrefix(upload.ObjectKey, "catalog/product/01HX/"), upload.ObjectKey)
	assert.Equal(t, "https://storage.googleapis.com/catalog-images/"+upload.ObjectKey, upload.PublicURL)
	assert.Equal(t, "catalog-images", signer.req.Bucket)
	assert.Equal(t, int64(1024), signer.req.MaxSize)
	assert.Contains(t, signer.req.AllowedContentTypes, "image/webp")
	assert.True(t, UploadsEnabled(svc))
}

func TestIssueImageUploadValidation(t *testing.T) {
	svc := newTestUploadService(t, &stubUploadSigner{})
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  ImageUploadCommand
	}{
		{name: "unknown kind", cmd: ImageUploadCommand{Kind: "avatar", FileName: "a.png", ContentType: "image/png", SizeBytes: 10}},
		{name: "zero size", cmd: ImageUploadCommand{Kind: "hero", FileName: "a.png", ContentType: "image/png"}},
		{name: "too large", cmd: ImageUploadCommand{Kind: "hero", FileName: "a.png", ContentType: "image/png", SizeBytes: 2048}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.IssueImageUpload(ctx, tc.cmd)
			if !errors.Is(err, ErrUploadInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestIssueImageUploadSignerFailure(t *testing.T) {
	svc := newTestUploadService(t, &stubUploadSigner{err: errors.New("kms down")})
	_, err := svc.IssueImageUpload(context.Background(), ImageUploadCommand{
		Kind: "category", FileName: "a.png", ContentType: "image/png", SizeBytes: 10,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUploadInvalidInput)
}

func TestUploadsDisabledWithoutBucket(t *testing.T) {
	svc, err := NewUploadService(UploadServiceDeps{Signer: &stubUploadSigner{}})
	require.NoError(t, err)
	assert.False(t, UploadsEnabled(svc))

	_, err = svc.IssueImageUpload(context.Background(), ImageUploadCommand{Kind: "hero", SizeBytes: 1})
	assert.ErrorIs(t, err, ErrUploadsDisabled)
}
