package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// BucketProbe checks that the images bucket is reachable for readiness reports.
type BucketProbe struct {
	client *gcs.Client
	bucket string
}

// NewBucketProbe wraps an existing Cloud Storage client.
func NewBucketProbe(client *gcs.Client, bucket string) (*BucketProbe, error) {
	if client == nil {
		return nil, errors.New("storage probe: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &BucketProbe{client: client, bucket: bucket}, nil
}

// Check reads the bucket attributes.
func (p *BucketProbe) Check(ctx context.Context) error {
	_, err := p.client.Bucket(p.bucket).Attrs(ctx)
	return err
}

// Close releases the underlying client.
func (p *BucketProbe) Close() error {
	return p.client.Close()
}
