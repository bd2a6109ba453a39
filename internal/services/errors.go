package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the category or product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogVersionConflict indicates the category changed since the caller read it.
	ErrCatalogVersionConflict = errors.New("catalog: version conflict")
	// ErrCatalogUnavailable indicates the backing store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: store unavailable")
	// ErrUnknownService indicates a service id outside the offering list.
	ErrUnknownService = errors.New("catalog: unknown service")
	// ErrUploadsDisabled indicates no images bucket is configured.
	ErrUploadsDisabled = errors.New("upload: not configured")
	// ErrUploadInvalidInput indicates an upload request that fails the image policy.
	ErrUploadInvalidInput = errors.New("upload: invalid input")
)

// translateRepositoryError maps persistence failures onto service sentinels, keeping the cause.
func translateRepositoryError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s: %w", ErrCatalogNotFound, op, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %s: %w", ErrCatalogVersionConflict, op, err)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %s: %w", ErrCatalogUnavailable, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
