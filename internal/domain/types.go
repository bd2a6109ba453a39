package domain

import (
	"time"
)

// DefaultCategoryIcon is applied to categories created without an icon tag.
const DefaultCategoryIcon = "Box"

// HomepageFallbackCategoryCount bounds the homepage selection when no featured setting exists.
const HomepageFallbackCategoryCount = 4

// Category groups products shown on the products page and, optionally, the homepage.
type Category struct {
	ID        string
	DisplayID int
	Name      string
	NameAr    string
	Image     string
	IconName  string
	Products  []Product
	Version   int64
	UpdatedAt time.Time
}

// Product lives inside its parent category's product list and has no store-level identity.
type Product struct {
	ID            string
	Name          string
	NameAr        string
	Description   string
	DescriptionAr string
	Price         string
	Image         string
	Features      []string
	FeaturesAr    []string
}

// ProductIndex reports the position of the product with id inside the list, or -1.
func (c Category) ProductIndex(id string) int {
	for i, product := range c.Products {
		if product.ID == id {
			return i
		}
	}
	return -1
}

// ServiceOffering is one of the fixed solution bundles advertised on the site.
type ServiceOffering struct {
	ID     int
	Name   string
	NameAr string
	Slug   string
}

// ServiceProductLink lists the products attached to a service offering.
type ServiceProductLink struct {
	ServiceID  int
	DocumentID string
	ProductIDs []string
	UpdatedAt  time.Time
}

// ServiceProducts pairs an offering with the products its link resolves to.
type ServiceProducts struct {
	Service  ServiceOffering
	Products []Product
}

// FeaturedCategories is the ordered homepage category selection.
type FeaturedCategories struct {
	CategoryIDs []string
	UpdatedAt   time.Time
}

// HeroBackgrounds lists the landing page background images.
type HeroBackgrounds struct {
	Images    []string
	UpdatedAt time.Time
}

// ReferenceReport summarises dangling references across catalog documents.
type ReferenceReport struct {
	CheckedAt           time.Time
	CategoryCount       int
	ProductCount        int
	MissingFeatured     []string
	DanglingLinks       []DanglingLink
	UnknownServiceLinks []string
	DuplicateProductIDs []DuplicateProduct
}

// DanglingLink is a service link entry whose product no longer exists.
type DanglingLink struct {
	ServiceID int
	ProductID string
}

// DuplicateProduct identifies a product id repeated inside one category.
type DuplicateProduct struct {
	CategoryID string
	ProductID  string
	Count      int
}

// Clean reports whether the audit found nothing.
func (r ReferenceReport) Clean() bool {
	return len(r.MissingFeatured) == 0 &&
		len(r.DanglingLinks) == 0 &&
		len(r.UnknownServiceLinks) == 0 &&
		len(r.DuplicateProductIDs) == 0
}

// ImageUpload describes a signed upload target for catalog imagery.
type ImageUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ObjectKey string
	PublicURL string
	ExpiresAt time.Time
}

const (
	// HealthStatusOK means every probed dependency answered.
	HealthStatusOK = "ok"
	// HealthStatusDegraded means a dependency reported an error but the service keeps serving.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means a dependency timed out or the probe was cancelled.
	HealthStatusError = "error"
)

// SystemHealthReport aggregates dependency checks for readiness responses.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SystemHealthCheck represents the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
	Error     string
}
