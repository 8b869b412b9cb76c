// Package jobs carries order events to out-of-band workers over Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/shopnatural/core/internal/services"
)

// PubSubNotificationPublisher publishes order notifications to a Pub/Sub
// topic consumed by the mailer worker.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderNotification enqueues the notification on the configured topic.
func (p *PubSubNotificationPublisher) PublishOrderNotification(ctx context.Context, notification services.OrderNotification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal order notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "kind", notification.Kind)
	setAttr(attrs, "orderId", notification.OrderID)
	setAttr(attrs, "orderNumber", notification.OrderNumber)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
