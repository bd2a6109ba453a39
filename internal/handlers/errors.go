package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/platform/requestctx"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// writeServiceError maps service errors onto the JSON envelope. notFoundCode names the missing
// resource, e.g. "category_not_found".
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, notFoundCode string) {
	if err == nil {
		return
	}
	if notFoundCode == "" {
		notFoundCode = "route_not_found"
	}

	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput), errors.Is(err, services.ErrUploadInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnknownService):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(notFoundCode, err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogVersionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("version_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", err.Error(), http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable), errors.Is(err, context.DeadlineExceeded):
		requestctx.Logger(ctx).Warn("store unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "catalog store unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal error", http.StatusInternalServerError))
	}
}

// productNotFoundCode distinguishes a missing category document from a product missing in it.
func productNotFoundCode(err error) string {
	if repositories.IsNotFound(err) {
		return "category_not_found"
	}
	return "product_not_found"
}

func writeInvalidRequest(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
