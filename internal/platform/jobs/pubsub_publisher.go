package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/coastalcannabis/checkout-api/internal/platform/textutil"
	"github.com/coastalcannabis/checkout-api/internal/services"
)

// PubSubCompletionPublisher publishes order completion events to a Pub/Sub topic.
type PubSubCompletionPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCompletionPublisher constructs a Pub/Sub backed completion event publisher.
func NewPubSubCompletionPublisher(topic *pubsub.Topic) (*PubSubCompletionPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub completion publisher: topic is required")
	}
	return &PubSubCompletionPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderCompleted enqueues an order completion message on the configured topic.
func (p *PubSubCompletionPublisher) PublishOrderCompleted(ctx context.Context, message services.OrderCompletedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub completion publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order completed event: %w", err)
	}

	attrs := textutil.NormalizeStringMap(map[string]string{
		"checkoutId":      message.CheckoutID,
		"paymentMethodId": message.PaymentMethodID,
		"deliveryMethod":  string(message.DeliveryMethod),
		"totalPrice":      strconv.FormatInt(message.TotalPrice, 10),
	})

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order completed event: %w", err)
	}
	return id, nil
}
