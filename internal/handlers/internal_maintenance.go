package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/platform/requestctx"
	"github.com/nirvana-iot/catalog-api/internal/platform/scheduler"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// JobTrigger runs a registered maintenance job on demand.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// InternalMaintenanceHandlers serves the endpoints Cloud Scheduler and operators call.
type InternalMaintenanceHandlers struct {
	audit services.ReferenceAuditService
	jobs  JobTrigger
}

// InternalMaintenanceOption customises InternalMaintenanceHandlers.
type InternalMaintenanceOption func(*InternalMaintenanceHandlers)

// WithMaintenanceJobs exposes the scheduler's jobs for on-demand runs.
func WithMaintenanceJobs(jobs JobTrigger) InternalMaintenanceOption {
	return func(h *InternalMaintenanceHandlers) {
		h.jobs = jobs
	}
}

// NewInternalMaintenanceHandlers constructs the maintenance handlers.
func NewInternalMaintenanceHandlers(audit services.ReferenceAuditService, opts ...InternalMaintenanceOption) *InternalMaintenanceHandlers {
	h := &InternalMaintenanceHandlers{audit: audit}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the maintenance endpoints.
func (h *InternalMaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/maintenance", func(rt chi.Router) {
		rt.Get("/references", h.auditReferences)
		rt.Post("/jobs/{jobName}", h.runJob)
	})
}

type referenceReportResponse struct {
	CheckedAt           string                   `json:"checkedAt"`
	Clean               bool                     `json:"clean"`
	CategoryCount       int                      `json:"categoryCount"`
	ProductCount        int                      `json:"productCount"`
	MissingFeatured     []string                 `json:"missingFeatured"`
	DanglingLinks       []danglingLinkResponse   `json:"danglingLinks"`
	UnknownServiceLinks []string                 `json:"unknownServiceLinks"`
	DuplicateProductIDs []duplicateProductResult `json:"duplicateProductIds"`
}

type danglingLinkResponse struct {
	ServiceID int    `json:"serviceId"`
	ProductID string `json:"productId"`
}

type duplicateProductResult struct {
	CategoryID string `json:"categoryId"`
	ProductID  string `json:"productId"`
	Count      int    `json:"count"`
}

func (h *InternalMaintenanceHandlers) auditReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		writeServiceUnavailable(ctx, w, "reference audit")
		return
	}
	report, err := h.audit.AuditReferences(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newReferenceReportResponse(report))
}

func (h *InternalMaintenanceHandlers) runJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.jobs == nil {
		writeServiceUnavailable(ctx, w, "scheduler")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "jobName"))
	started := time.Now()
	if err := h.jobs.Trigger(ctx, name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			httpx.WriteError(ctx, w, httpx.NewError("route_not_found", err.Error(), http.StatusNotFound))
			return
		}
		writeServiceError(ctx, w, err, "")
		return
	}
	requestctx.Logger(ctx).Info("maintenance job triggered",
		zap.String("job", name),
		zap.String("actor", requestctx.Actor(ctx)),
		zap.Duration("elapsed", time.Since(started)),
	)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"job": name, "status": "completed"})
}

func newReferenceReportResponse(report services.ReferenceReport) referenceReportResponse {
	resp := referenceReportResponse{
		CheckedAt:           report.CheckedAt.UTC().Format(time.RFC3339),
		Clean:               report.Clean(),
		CategoryCount:       report.CategoryCount,
		ProductCount:        report.ProductCount,
		MissingFeatured:     nonNilStrings(report.MissingFeatured),
		DanglingLinks:       make([]danglingLinkResponse, 0, len(report.DanglingLinks)),
		UnknownServiceLinks: nonNilStrings(report.UnknownServiceLinks),
		DuplicateProductIDs: make([]duplicateProductResult, 0, len(report.DuplicateProductIDs)),
	}
	for _, link := range report.DanglingLinks {
		resp.DanglingLinks = append(resp.DanglingLinks, danglingLinkResponse{ServiceID: link.ServiceID, ProductID: link.ProductID})
	}
	for _, dup := range report.DuplicateProductIDs {
		resp.DuplicateProductIDs = append(resp.DuplicateProductIDs, duplicateProductResult{
			CategoryID: dup.CategoryID,
			ProductID:  dup.ProductID,
			Count:      dup.Count,
		})
	}
	return resp
}
