// Package offerings holds the fixed list of advertised service bundles and default landing imagery.
package offerings

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
)

//go:embed offerings.yaml
var defaultDocument []byte

type document struct {
	Services []struct {
		ID     int    `yaml:"id"`
		Slug   string `yaml:"slug"`
		Name   string `yaml:"name"`
		NameAr string `yaml:"nameAr"`
	} `yaml:"services"`
	HeroFallback []string `yaml:"heroFallback"`
}

// Catalog is an immutable view of the configured offerings.
type Catalog struct {
	services     []domain.ServiceOffering
	byID         map[int]domain.ServiceOffering
	heroFallback []string
}

// Parse decodes and validates an offerings document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("offerings: decode: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("offerings: at least one service is required")
	}

	catalog := &Catalog{byID: make(map[int]domain.ServiceOffering, len(doc.Services))}
	for _, entry := range doc.Services {
		if entry.ID <= 0 {
			return nil, fmt.Errorf("offerings: service id must be positive, got %d", entry.ID)
		}
		if _, dup := catalog.byID[entry.ID]; dup {
			return nil, fmt.Errorf("offerings: duplicate service id %d", entry.ID)
		}
		if strings.TrimSpace(entry.Name) == "" || strings.TrimSpace(entry.NameAr) == "" {
			return nil, fmt.Errorf("offerings: service %d requires both names", entry.ID)
		}
		offering := domain.ServiceOffering{
			ID:     entry.ID,
			Slug:   strings.TrimSpace(entry.Slug),
			Name:   strings.TrimSpace(entry.Name),
			NameAr: strings.TrimSpace(entry.NameAr),
		}
		catalog.byID[offering.ID] = offering
		catalog.services = append(catalog.services, offering)
	}
	sort.SliceStable(catalog.services, func(i, j int) bool {
		return catalog.services[i].ID < catalog.services[j].ID
	})
	for _, image := range doc.HeroFallback {
		if trimmed := strings.TrimSpace(image); trimmed != "" {
			catalog.heroFallback = append(catalog.heroFallback, trimmed)
		}
	}
	return catalog, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded offerings. It panics if the embedded document is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(defaultDocument)
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultCatalog
}

// Services returns the offerings ordered by id.
func (c *Catalog) Services() []domain.ServiceOffering {
	return append([]domain.ServiceOffering(nil), c.services...)
}

// Lookup returns the offering with the given id.
func (c *Catalog) Lookup(id int) (domain.ServiceOffering, bool) {
	offering, ok := c.byID[id]
	return offering, ok
}

// HeroFallback returns the default landing page background images.
func (c *Catalog) HeroFallback() []string {
	return append([]string(nil), c.heroFallback...)
}
