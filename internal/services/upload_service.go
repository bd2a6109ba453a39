package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	pstorage "github.com/nirvana-iot/catalog-api/internal/platform/storage"
)

const (
	defaultImageUploadMaxBytes = int64(10 * 1024 * 1024)
	imageCacheControl          = "public, max-age=31536000, immutable"
)

var allowedImageContentTypes = []string{"image/png", "image/jpeg", "image/webp", "image/svg+xml"}

// UploadSigner signs browser uploads into object storage.
type UploadSigner interface {
	SignUpload(ctx context.Context, req pstorage.UploadRequest) (pstorage.SignedUpload, error)
}

// UploadServiceDeps wires the signed upload service.
type UploadServiceDeps struct {
	Signer        UploadSigner
	Bucket        string
	PublicBaseURL string
	MaxBytes      int64
	TTL           time.Duration
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	NewID         func() string
}

type uploadService struct {
	signer        UploadSigner
	bucket        string
	publicBaseURL string
	maxBytes      int64
	ttl           time.Duration
	logger        logFunc
	newID         func() string
}

var _ UploadService = (*uploadService)(nil)

// NewUploadService constructs the image upload service. A nil signer or empty bucket yields a
// service that reports ErrUploadsDisabled.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = noopLog
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if deps.Signer == nil || bucket == "" {
		return &uploadService{logger: logger}, nil
	}
	base := strings.TrimSpace(deps.PublicBaseURL)
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultImageUploadMaxBytes
	}
	newID := deps.NewID
	if newID == nil {
		clock := deps.Clock
		if clock == nil {
			clock = time.Now
		}
		newID = func() string { return ulid.MustNew(ulid.Timestamp(clock()), ulid.DefaultEntropy()).String() }
	}
	return &uploadService{
		signer:        deps.Signer,
		bucket:        bucket,
		publicBaseURL: base,
		maxBytes:      maxBytes,
		ttl:           deps.TTL,
		logger:        logger,
		newID:         newID,
	}, nil
}

func (s *uploadService) IssueImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error) {
	if s.signer == nil {
		return ImageUpload{}, ErrUploadsDisabled
	}
	kind, ok := pstorage.ParseImageKind(cmd.Kind)
	if !ok {
		return ImageUpload{}, fmt.Errorf("%w: kind must be category, product or hero", ErrUploadInvalidInput)
	}
	if cmd.SizeBytes <= 0 {
		return ImageUpload{}, fmt.Errorf("%w: size must be positive", ErrUploadInvalidInput)
	}
	if cmd.SizeBytes > s.maxBytes {
		return ImageUpload{}, fmt.Errorf("%w: size exceeds %d bytes", ErrUploadInvalidInput, s.maxBytes)
	}

	object, err := pstorage.ImageObjectPath(kind, s.newID(), cmd.FileName)
	if err != nil {
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err)
	}

	signed, err := s.signer.SignUpload(ctx, pstorage.UploadRequest{
		Bucket:              s.bucket,
		Object:              object,
		ContentType:         cmd.ContentType,
		Size:                cmd.SizeBytes,
		MaxSize:             s.maxBytes,
		AllowedContentTypes: allowedImageContentTypes,
		ExpiresIn:           s.ttl,
		CacheControl:        imageCacheControl,
	})
	if err != nil {
		if pstorage.IsValidationError(err) {
			return ImageUpload{}, fmt.Errorf("%w: %v", ErrUploadInvalidInput, err)
		}
		return ImageUpload{}, fmt.Errorf("upload: sign url: %w", err)
	}

	upload := domain.ImageUpload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ObjectKey: object,
		PublicURL: pstorage.PublicURL(s.publicBaseURL, object),
		ExpiresAt: signed.ExpiresAt,
	}
	s.logger(ctx, "upload.image.issued", map[string]any{
		"actorId":   cmd.ActorID,
		"kind":      string(kind),
		"objectKey": object,
		"size":      cmd.SizeBytes,
		"expiresAt": upload.ExpiresAt,
	})
	return upload, nil
}

// UploadsEnabled reports whether svc can issue URLs.
func UploadsEnabled(svc UploadService) bool {
	impl, ok := svc.(*uploadService)
	return ok && impl.signer != nil
}

