package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	domain "github.com/nirvana-iot/catalog-api/internal/domain"
	"github.com/nirvana-iot/catalog-api/internal/repositories"
)

const serviceLinkPrefix = "service_"

type serviceLinkRecord struct {
	ProductIDs []string  `json:"productIds"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ServiceLinkRepository stores service link documents keyed service_{id}.
type ServiceLinkRepository struct {
	db    *bbolt.DB
	clock func() time.Time
}

var _ repositories.ServiceLinkRepository = (*ServiceLinkRepository)(nil)

func (r *ServiceLinkRepository) Get(ctx context.Context, serviceID int) (domain.ServiceProductLink, error) {
	key := serviceLinkPrefix + strconv.Itoa(serviceID)
	var link domain.ServiceProductLink
	err := view(ctx, r.db, func(tx *bbolt.Tx) error {
		var record serviceLinkRecord
		found, err := getJSON(tx.Bucket(bucketServiceLinks), key, &record)
		if err != nil {
			return err
		}
		if !found {
			return repositories.NewNotFoundError("service_products.get", nil)
		}
		link = record.toDomain(key)
		return nil
	})
	return link, err
}

func (r *ServiceLinkRepository) Set(ctx context.Context, link domain.ServiceProductLink) error {
	if link.ServiceID <= 0 {
		return fmt.Errorf("service_products.set: invalid service id %d", link.ServiceID)
	}
	record := serviceLinkRecord{ProductIDs: link.ProductIDs, UpdatedAt: r.clock()}
	if record.ProductIDs == nil {
		record.ProductIDs = []string{}
	}
	return update(ctx, r.db, func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketServiceLinks), serviceLinkPrefix+strconv.Itoa(link.ServiceID), record)
	})
}

func (r *ServiceLinkRepository) List(ctx context.Context) ([]domain.ServiceProductLink, error) {
	links := []domain.ServiceProductLink{}
	err := view(ctx, r.db, func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketServiceLinks).ForEach(func(key, value []byte) error {
			var record serviceLinkRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			links = append(links, record.toDomain(string(key)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service_products.list: %w", err)
	}
	return links, nil
}

func (r serviceLinkRecord) toDomain(key string) domain.ServiceProductLink {
	link := domain.ServiceProductLink{
		DocumentID: key,
		ProductIDs: r.ProductIDs,
		UpdatedAt:  r.UpdatedAt,
	}
	if link.ProductIDs == nil {
		link.ProductIDs = []string{}
	}
	if raw, ok := strings.CutPrefix(key, serviceLinkPrefix); ok {
		if id, err := strconv.Atoi(raw); err == nil && id > 0 {
			link.ServiceID = id
		}
	}
	return link
}
