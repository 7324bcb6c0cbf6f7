package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/routingkey"
	cartdomain "github.com/ghuser/orderflow/services/cart/domain"
	"github.com/ghuser/orderflow/services/cart/domain/models"
	"github.com/ghuser/orderflow/services/cart/domain/repositories"
	domainsvcs "github.com/ghuser/orderflow/services/cart/domain/services"
)

// MaxItemsPerOrder bounds numberOfItems on a create request.
const MaxItemsPerOrder = 100

// OrderEventPublisher announces a created order.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, ev events.OrderCreatedEvent) (messaging.PublishReceipt, error)
}

// CreatedOrder is an order together with its publish receipt.
type CreatedOrder struct {
	Order   *models.Order
	EventID string
	Receipt messaging.PublishReceipt
}

// CartService creates orders and publishes them for the orders service.
type CartService struct {
	registry  repositories.OrderRegistry
	generator domainsvcs.ItemGenerator
	publisher OrderEventPublisher
	log       logger.Logger
	now       func() time.Time
}

// NewCartService returns a CartService.
func NewCartService(
	registry repositories.OrderRegistry,
	generator domainsvcs.ItemGenerator,
	publisher OrderEventPublisher,
	log logger.Logger,
) *CartService {
	return &CartService{
		registry:  registry,
		generator: generator,
		publisher: publisher,
		log:       log.With("component", "cart_service"),
		now:       time.Now,
	}
}

// CreateOrder reserves orderID, generates numberOfItems items and publishes
// the order_created event. A failed publish releases the reservation so
// the caller can retry with the same orderID.
//
// Errors:
//   - ErrInvalidOrder (also routingkey.ErrInvalidIdentifier for bad ids)
//   - ErrOrderAlreadyExists when orderID was already announced
//   - messaging.ErrBrokerUnavailable when the broker cannot take the event
func (s *CartService) CreateOrder(ctx context.Context, orderID string, numberOfItems int) (*CreatedOrder, error) {
	if err := routingkey.ValidateSegment(orderID); err != nil {
		return nil, fmt.Errorf("%w: %w: orderId %w", cartdomain.ErrInvalidOrder, routingkey.ErrInvalidIdentifier, err)
	}
	if numberOfItems < 1 || numberOfItems > MaxItemsPerOrder {
		return nil, fmt.Errorf("%w: numberOfItems must be between 1 and %d (got %d)",
			cartdomain.ErrInvalidOrder, MaxItemsPerOrder, numberOfItems)
	}

	reserved, err := s.registry.Reserve(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reserve order id: %w", err)
	}
	if !reserved {
		return nil, fmt.Errorf("%w: %s", cartdomain.ErrOrderAlreadyExists, orderID)
	}

	created, err := s.build(ctx, orderID, numberOfItems)
	if err != nil {
		s.release(ctx, orderID)
		return nil, err
	}

	s.log.InfoContext(ctx, "order published",
		"order_id", orderID,
		"event_id", created.EventID,
		"message_id", created.Receipt.MessageID,
		"routing_key", created.Receipt.RoutingKey.String(),
		"items", numberOfItems,
		"total", created.Order.Total.String(),
	)
	return created, nil
}

func (s *CartService) build(ctx context.Context, orderID string, numberOfItems int) (*CreatedOrder, error) {
	now := s.now()
	order, err := models.NewOrder(
		orderID,
		s.generator.CustomerID(),
		s.generator.Items(numberOfItems),
		s.generator.Currency(),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cartdomain.ErrInvalidOrder, err)
	}

	ev := events.NewOrderCreated(order.Data(), now)
	rcpt, err := s.publisher.PublishOrderCreated(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("publish order %s: %w", orderID, err)
	}
	return &CreatedOrder{Order: order, EventID: ev.EventID.String(), Receipt: rcpt}, nil
}

func (s *CartService) release(ctx context.Context, orderID string) {
	if err := s.registry.Release(context.WithoutCancel(ctx), orderID); err != nil {
		s.log.ErrorContext(ctx, "failed to release order id after publish failure",
			"order_id", orderID, "error", err)
	}
}
