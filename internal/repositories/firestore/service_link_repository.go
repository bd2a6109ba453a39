package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	pfirestore "github.com/nirvana-iot/catalog-api/internal/platform/firestore"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const (
	serviceLinksCollection = "service_products"
	serviceLinkPrefix      = "service_"
)

type serviceLinkDocument struct {
	ProductIDs []string  `firestore:"productIds"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// ServiceLinkRepository stores service_products/service_{id} documents.
type ServiceLinkRepository struct {
	base  *pfirestore.BaseRepository[domain.ServiceProductLink]
	clock func() time.Time
}

var _ repositories.ServiceLinkRepository = (*ServiceLinkRepository)(nil)

// NewServiceLinkRepository constructs a Firestore-backed service link repository.
func NewServiceLinkRepository(provider *pfirestore.Provider, clock func() time.Time) (*ServiceLinkRepository, error) {
	if provider == nil {
		return nil, errors.New("service link repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ServiceLinkRepository{
		base:  pfirestore.NewBaseRepository[domain.ServiceProductLink](provider, serviceLinksCollection, encodeServiceLink, decodeServiceLink),
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

// ServiceLinkDocumentID returns the document id used for a service.
func ServiceLinkDocumentID(serviceID int) string {
	return serviceLinkPrefix + strconv.Itoa(serviceID)
}

// ParseServiceLinkDocumentID extracts the service id from a document id.
func ParseServiceLinkDocumentID(docID string) (int, bool) {
	raw, ok := strings.CutPrefix(docID, serviceLinkPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (r *ServiceLinkRepository) Get(ctx context.Context, serviceID int) (domain.ServiceProductLink, error) {
	if serviceID <= 0 {
		return domain.ServiceProductLink{}, fmt.Errorf("service_products.get: invalid service id %d", serviceID)
	}
	doc, err := r.base.Get(ctx, ServiceLinkDocumentID(serviceID))
	if err != nil {
		return domain.ServiceProductLink{}, err
	}
	return linkWithID(doc), nil
}

// Set overwrites the mapping document; existing product ids are not merged.
func (r *ServiceLinkRepository) Set(ctx context.Context, link domain.ServiceProductLink) error {
	if link.ServiceID <= 0 {
		return fmt.Errorf("service_products.set: invalid service id %d", link.ServiceID)
	}
	link.UpdatedAt = r.clock()
	_, err := r.base.Set(ctx, ServiceLinkDocumentID(link.ServiceID), link)
	return err
}

// List returns every mapping document. Documents whose id does not parse carry ServiceID 0.
func (r *ServiceLinkRepository) List(ctx context.Context) ([]domain.ServiceProductLink, error) {
	docs, err := r.base.All(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]domain.ServiceProductLink, 0, len(docs))
	for _, doc := range docs {
		links = append(links, linkWithID(doc))
	}
	return links, nil
}

func linkWithID(doc pfirestore.Document[domain.ServiceProductLink]) domain.ServiceProductLink {
	link := doc.Data
	link.DocumentID = doc.ID
	link.ServiceID, _ = ParseServiceLinkDocumentID(doc.ID)
	return link
}

func encodeServiceLink(link domain.ServiceProductLink) (any, error) {
	return serviceLinkDocument{
		ProductIDs: nonNil(link.ProductIDs),
		UpdatedAt:  link.UpdatedAt,
	}, nil
}

func decodeServiceLink(snap *firestore.DocumentSnapshot) (domain.ServiceProductLink, error) {
	data := snap.Data()
	return domain.ServiceProductLink{
		ProductIDs: stringSliceField(data, "productIds"),
		UpdatedAt:  timeField(data, "updatedAt"),
	}, nil
}
