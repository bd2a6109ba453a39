package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const defaultUploadExpiry = 15 * time.Minute

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errContentTypeMissing = errors.New("storage: content type is required")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errSizeInvalid        = errors.New("storage: size must be positive")
	errSizeTooLarge       = errors.New("storage: size exceeds the upload limit")
)

// Client generates V4 signed upload URLs.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// UploadRequest describes the object a browser is about to PUT.
type UploadRequest struct {
	Bucket              string
	Object              string
	ContentType         string
	Size                int64
	MaxSize             int64
	AllowedContentTypes []string
	ExpiresIn           time.Duration
	// CacheControl is bound into the signature so the stored object keeps it.
	CacheControl string
}

// SignedUpload is the URL plus the headers the uploader must send verbatim.
type SignedUpload struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignUpload validates the request and signs a PUT URL bound to its content type and size range.
func (c *Client) SignUpload(ctx context.Context, req UploadRequest) (SignedUpload, error) {
	if c == nil {
		return SignedUpload{}, errNoSigner
	}
	bucket := strings.TrimSpace(req.Bucket)
	if bucket == "" {
		return SignedUpload{}, errInvalidBucket
	}
	object := strings.TrimSpace(req.Object)
	if object == "" {
		return SignedUpload{}, errInvalidObject
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if contentType == "" {
		return SignedUpload{}, errContentTypeMissing
	}
	if len(req.AllowedContentTypes) > 0 && !contentTypeAllowed(contentType, req.AllowedContentTypes) {
		return SignedUpload{}, fmt.Errorf("%w: %s", errContentTypeDenied, contentType)
	}
	if req.Size <= 0 {
		return SignedUpload{}, errSizeInvalid
	}
	if req.MaxSize > 0 && req.Size > req.MaxSize {
		return SignedUpload{}, fmt.Errorf("%w (%d bytes)", errSizeTooLarge, req.MaxSize)
	}

	expiry := req.ExpiresIn
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	expiresAt := c.now().Add(expiry)

	lengthRange := fmt.Sprintf("0,%d", req.Size)
	headers := map[string]string{
		"Content-Type":                contentType,
		"x-goog-content-length-range": lengthRange,
	}
	extHeaders := []string{"x-goog-content-length-range:" + lengthRange}
	if cc := strings.TrimSpace(req.CacheControl); cc != "" {
		headers["Cache-Control"] = cc
		extHeaders = append(extHeaders, "cache-control:"+cc)
	}

	signedURL, err := gcs.SignedURL(bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Headers:        extHeaders,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedUpload{
		URL:       signedURL,
		Method:    "PUT",
		ExpiresAt: expiresAt,
		Headers:   headers,
	}, nil
}

// IsValidationError reports whether err was caused by the upload request rather than signing.
func IsValidationError(err error) bool {
	for _, target := range []error{errInvalidBucket, errInvalidObject, errContentTypeMissing, errContentTypeDenied, errSizeInvalid, errSizeTooLarge, errInvalidPath} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" || candidate == contentType {
			return true
		}
		if prefix, ok := strings.CutSuffix(candidate, "/*"); ok && strings.HasPrefix(contentType, prefix+"/") {
			return true
		}
	}
	return false
}
