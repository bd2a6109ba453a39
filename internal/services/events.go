package services

import (
	"context"
	"time"
)

// CatalogChangedEventType is the message type carried by every catalog change event.
const CatalogChangedEventType = "catalog.changed"

const (
	CatalogEventCategoryCreated    = "category.created"
	CatalogEventCategoryUpdated    = "category.updated"
	CatalogEventCategoryDeleted    = "category.deleted"
	CatalogEventProductUpserted    = "product.upserted"
	CatalogEventProductDeleted     = "product.deleted"
	CatalogEventServiceLinksSet    = "service_links.set"
	CatalogEventFeaturedSet        = "featured_categories.set"
	CatalogEventHeroBackgroundsSet = "hero_backgrounds.set"
)

const eventPublishTimeout = 5 * time.Second

// CatalogEvent describes one committed catalog mutation.
type CatalogEvent struct {
	ID         string
	Kind       string
	CategoryID string
	ProductID  string
	ServiceID  int
	OccurredAt time.Time
}

type noopCatalogEventPublisher struct{}

func (noopCatalogEventPublisher) PublishCatalogEvent(context.Context, CatalogEvent) (string, error) {
	return "", nil
}

// NoopCatalogEventPublisher drops every event; used when no topic is configured.
func NoopCatalogEventPublisher() CatalogEventPublisher {
	return noopCatalogEventPublisher{}
}

type logFunc func(ctx context.Context, event string, fields map[string]any)

func noopLog(context.Context, string, map[string]any) {}

// eventEmitter publishes after a write has committed, so failures are logged and swallowed.
type eventEmitter struct {
	publisher CatalogEventPublisher
	logger    logFunc
	clock     func() time.Time
}

func newEventEmitter(publisher CatalogEventPublisher, logger logFunc, clock func() time.Time) eventEmitter {
	if publisher == nil {
		publisher = NoopCatalogEventPublisher()
	}
	if logger == nil {
		logger = noopLog
	}
	return eventEmitter{publisher: publisher, logger: logger, clock: clock}
}

func (e eventEmitter) emit(ctx context.Context, event CatalogEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.clock()
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if _, err := e.publisher.PublishCatalogEvent(pubCtx, event); err != nil {
		e.logger(ctx, "catalog.event.publish_failed", map[string]any{
			"kind":       event.Kind,
			"categoryId": event.CategoryID,
			"productId":  event.ProductID,
			"serviceId":  event.ServiceID,
			"error":      err.Error(),
		})
	}
}
