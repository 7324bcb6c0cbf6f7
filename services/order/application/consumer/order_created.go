// Package consumer turns order_created deliveries into order commits.
package consumer

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
	"github.com/ghuser/orderflow/pkg/telemetry"
	appsvcs "github.com/ghuser/orderflow/services/order/application/services"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
)

// OrderCreatedHandler validates each delivery, hands it to the order
// service and decides its disposition:
//
//	malformed body or routing key   → Drop (never requeued)
//	store unavailable               → Retry
//	any other failure               → Drop, reported to Sentry
//	stored, unchanged or skipped    → Ack
type OrderCreatedHandler struct {
	svc *appsvcs.OrderService
	log logger.Logger
}

// NewOrderCreatedHandler returns an OrderCreatedHandler.
func NewOrderCreatedHandler(svc *appsvcs.OrderService, log logger.Logger) *OrderCreatedHandler {
	return &OrderCreatedHandler{svc: svc, log: log.With("component", "order_consumer")}
}

// Handle implements messaging.Handler.
func (h *OrderCreatedHandler) Handle(ctx context.Context, msg *message.Message) messaging.Disposition {
	ev, err := Decode(msg)
	if err != nil {
		h.log.WarnContext(ctx, "rejecting malformed delivery",
			"message_id", msg.UUID,
			"routing_key", msg.Metadata.Get(messaging.MetadataRoutingKey),
			"error", err,
		)
		return messaging.Drop
	}

	outcome, err := h.svc.Process(ctx, ev)
	if err != nil {
		if appsvcs.IsTransient(err) {
			h.log.WarnContext(ctx, "order commit failed, requeueing",
				"order_id", ev.Data.OrderID, "event_id", ev.EventID.String(), "error", err)
			return messaging.Retry
		}
		h.log.ErrorContext(ctx, "order commit failed permanently",
			"order_id", ev.Data.OrderID, "event_id", ev.EventID.String(), "error", err)
		telemetry.CaptureDropped(ctx, err, map[string]string{
			"order_id": ev.Data.OrderID,
			"event_id": ev.EventID.String(),
		})
		return messaging.Drop
	}

	h.log.DebugContext(ctx, "delivery processed",
		"order_id", ev.Data.OrderID, "outcome", outcome.String())
	return messaging.Ack
}

// Decode parses an order_created delivery. The routing key, when present,
// must name the same order as the body. Every failure wraps
// domain.ErrMalformedPayload.
func Decode(msg *message.Message) (events.OrderCreatedEvent, error) {
	ev, err := events.ParseOrderCreated(msg.Payload)
	if err != nil {
		return events.OrderCreatedEvent{}, fmt.Errorf("%w: %w", orderdomain.ErrMalformedPayload, err)
	}

	key := msg.Metadata.Get(messaging.MetadataRoutingKey)
	if key == "" {
		return ev, nil
	}
	_, orderID, err := routingkey.Decode(routingkey.Key(key))
	if err != nil {
		return events.OrderCreatedEvent{}, fmt.Errorf("%w: routing key: %w", orderdomain.ErrMalformedPayload, err)
	}
	if orderID != ev.Data.OrderID {
		return events.OrderCreatedEvent{}, fmt.Errorf("%w: routing key %q does not match orderId %q",
			orderdomain.ErrMalformedPayload, key, ev.Data.OrderID)
	}
	return ev, nil
}
