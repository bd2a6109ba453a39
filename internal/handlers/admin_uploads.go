package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nirvana-iot/catalog-api/internal/platform/auth"
	"github.com/nirvana-iot/catalog-api/internal/platform/httpx"
	"github.com/nirvana-iot/catalog-api/internal/services"
)

// AdminUploadHandlers issues signed URLs the dashboard uploads catalog images to.
type AdminUploadHandlers struct {
	uploads services.UploadService
}

// NewAdminUploadHandlers constructs the upload handlers.
func NewAdminUploadHandlers(uploads services.UploadService) *AdminUploadHandlers {
	return &AdminUploadHandlers{uploads: uploads}
}

// Routes registers the upload endpoints.
func (h *AdminUploadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/uploads/images", h.issueImageUpload)
}

type imageUploadRequest struct {
	Kind        string `json:"kind"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type imageUploadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

func (h *AdminUploadHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		writeServiceError(ctx, w, services.ErrUploadsDisabled, "")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	var req imageUploadRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeInvalidRequest(ctx, w, err)
		return
	}
	upload, err := h.uploads.IssueImageUpload(ctx, services.ImageUploadCommand{
		Kind:        req.Kind,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err, "")
		return
	}
	headers := upload.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	httpx.WriteJSON(w, http.StatusCreated, imageUploadResponse{
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   headers,
		ObjectKey: upload.ObjectKey,
		PublicURL: upload.PublicURL,
		ExpiresAt: upload.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
