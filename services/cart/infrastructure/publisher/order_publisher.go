// Package publisher announces cart orders on the broker.
package publisher

import (
	"context"
	"fmt"

	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
)

// OrderPublisher publishes order_created events with routing key
// "<status>.<orderId>".
type OrderPublisher struct {
	pub *messaging.Publisher
}

// NewOrderPublisher wraps pub.
func NewOrderPublisher(pub *messaging.Publisher) *OrderPublisher {
	return &OrderPublisher{pub: pub}
}

// PublishOrderCreated encodes the routing key, serializes ev and publishes it.
func (p *OrderPublisher) PublishOrderCreated(ctx context.Context, ev events.OrderCreatedEvent) (messaging.PublishReceipt, error) {
	key, err := routingkey.Encode(ev.Data.Status, ev.Data.OrderID)
	if err != nil {
		return messaging.PublishReceipt{}, err
	}
	msg, err := ev.ToMessage()
	if err != nil {
		return messaging.PublishReceipt{}, err
	}
	rcpt, err := p.pub.Publish(ctx, key, msg)
	if err != nil {
		return messaging.PublishReceipt{}, fmt.Errorf("publish %s: %w", key, err)
	}
	return rcpt, nil
}
