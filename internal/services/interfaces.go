package services

import (
	"context"
	"time"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Category           = domain.Category
	Product            = domain.Product
	ServiceOffering    = domain.ServiceOffering
	ServiceProductLink = domain.ServiceProductLink
	ServiceProducts    = domain.ServiceProducts
	FeaturedCategories = domain.FeaturedCategories
	HeroBackgrounds    = domain.HeroBackgrounds
	ReferenceReport    = domain.ReferenceReport
	ImageUpload        = domain.ImageUpload
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages category documents for the admin dashboard.
type CatalogService interface {
	// ListCategories returns categories ordered by displayId, ties broken by id.
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpdateCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// ProductService edits the product list embedded in one category.
type ProductService interface {
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (ProductChange, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) (Category, error)
}

// ServiceLinkService maintains the products attached to each service offering.
type ServiceLinkService interface {
	Offerings() []ServiceOffering
	GetLinks(ctx context.Context, serviceID int) (ServiceProductLink, error)
	SetLinks(ctx context.Context, cmd SetLinksCommand) (ServiceProductLink, error)
	// ResolveServiceProducts returns every offering with its linked products that still exist.
	ResolveServiceProducts(ctx context.Context) ([]ServiceProducts, error)
	ServiceProducts(ctx context.Context, serviceID int) (ServiceProducts, error)
}

// SettingsService owns the singleton homepage settings.
type SettingsService interface {
	GetFeatured(ctx context.Context) (FeaturedCategories, error)
	SetFeatured(ctx context.Context, cmd SetFeaturedCommand) (FeaturedCategories, error)
	HomepageCategories(ctx context.Context) ([]Category, error)
	GetHeroBackgrounds(ctx context.Context) (HeroBackgroundsView, error)
	SetHeroBackgrounds(ctx context.Context, cmd SetHeroBackgroundsCommand) (HeroBackgroundsView, error)
}

// StorefrontService serves the public pages. Store failures are logged and degrade to empty results.
type StorefrontService interface {
	Categories(ctx context.Context) []Category
	HomepageCategories(ctx context.Context) []Category
	Services(ctx context.Context) []ServiceProducts
	// ServiceProducts fails only for service ids outside the offering list.
	ServiceProducts(ctx context.Context, serviceID int) (ServiceProducts, error)
	HeroBackgrounds(ctx context.Context) []string
}

// ReferenceAuditService reports dangling references between catalog documents.
type ReferenceAuditService interface {
	AuditReferences(ctx context.Context) (ReferenceReport, error)
}

// UploadService issues signed upload URLs for catalog imagery.
type UploadService interface {
	IssueImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error)
}

// SystemService exposes health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogEventPublisher delivers catalog change notifications.
type CatalogEventPublisher interface {
	PublishCatalogEvent(ctx context.Context, event CatalogEvent) (string, error)
}

type CreateCategoryCommand struct {
	DisplayID *int
	Name      string
	NameAr    string
	Image     string
	IconName  string
}

type UpdateCategoryCommand struct {
	CategoryID string
	Name       *string
	NameAr     *string
	Image      *string
}

type UpsertProductCommand struct {
	CategoryID string
	Product    Product
	// ExpectedVersion is optional; zero skips the check.
	ExpectedVersion int64
}

type DeleteProductCommand struct {
	CategoryID      string
	ProductID       string
	ExpectedVersion int64
}

// ProductChange is the saved product and the category version it landed in.
type ProductChange struct {
	Product  Product
	Category Category
	Created  bool
}

type SetLinksCommand struct {
	ServiceID  int
	ProductIDs []string
}

type SetFeaturedCommand struct {
	CategoryIDs []string
}

type SetHeroBackgroundsCommand struct {
	Images []string
}

// HeroBackgroundsView carries the effective hero images and whether they came from the built-in list.
type HeroBackgroundsView struct {
	Images    []string
	Fallback  bool
	UpdatedAt time.Time
}

type ImageUploadCommand struct {
	Kind        string
	FileName    string
	ContentType string
	SizeBytes   int64
	ActorID     string
}
