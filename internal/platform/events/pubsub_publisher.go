// Package events publishes catalog change notifications to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/nirvana-iot/catalog-api/internal/services"
)

// PubSubPublisher publishes catalog.changed messages to one topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	newID   func() string
}

var _ services.CatalogEventPublisher = (*PubSubPublisher)(nil)

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub catalog publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
		newID:   func() string { return uuid.NewString() },
	}, nil
}

type message struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	CategoryID string    `json:"categoryId,omitempty"`
	ProductID  string    `json:"productId,omitempty"`
	ServiceID  int       `json:"serviceId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PublishCatalogEvent waits for the server acknowledgement and returns the message id.
func (p *PubSubPublisher) PublishCatalogEvent(ctx context.Context, event services.CatalogEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub catalog publisher: not initialised")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return "", errors.New("pubsub catalog publisher: event kind is required")
	}

	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = p.newID()
	}
	data, err := p.marshal(message{
		ID:         eventID,
		Type:       services.CatalogChangedEventType,
		Kind:       event.Kind,
		CategoryID: event.CategoryID,
		ProductID:  event.ProductID,
		ServiceID:  event.ServiceID,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal catalog event: %w", err)
	}

	attrs := map[string]string{
		"eventId": eventID,
		"type":    services.CatalogChangedEventType,
		"kind":    event.Kind,
	}
	setAttr(attrs, "categoryId", event.CategoryID)
	setAttr(attrs, "productId", event.ProductID)
	if event.ServiceID > 0 {
		attrs["serviceId"] = strconv.Itoa(event.ServiceID)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish catalog event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
