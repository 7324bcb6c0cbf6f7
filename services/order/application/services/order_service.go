package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
	"github.com/ghuser/orderflow/services/order/domain/models"
	"github.com/ghuser/orderflow/services/order/domain/repositories"
	domainsvcs "github.com/ghuser/orderflow/services/order/domain/services"
)

// Outcome describes what processing an event did to the store.
type Outcome int

const (
	// Stored: the order was committed by this event.
	Stored Outcome = iota
	// Unchanged: the order was already committed; nothing was written.
	Unchanged
	// Skipped: the event status is not handled.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OrderReadCache is the read model warmed after each commit.
type OrderReadCache interface {
	Get(ctx context.Context, orderID string) (*cache.CachedOrder, error)
	Set(ctx context.Context, order *cache.CachedOrder) error
	Delete(ctx context.Context, orderID string) error
}

// OrderService materializes announced orders and serves them.
type OrderService struct {
	store    repositories.OrderStore
	shipping domainsvcs.ShippingPolicy
	cache    OrderReadCache
	log      logger.Logger
	now      func() time.Time
}

// NewOrderService returns an OrderService. readCache may be nil.
func NewOrderService(
	store repositories.OrderStore,
	shipping domainsvcs.ShippingPolicy,
	readCache OrderReadCache,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		store:    store,
		shipping: shipping,
		cache:    readCache,
		log:      log.With("component", "order_service"),
		now:      time.Now,
	}
}

// Process materializes ev. Only events with status "new" are stored; any
// other status is Skipped. The first commit of an order is final: later
// deliveries, of the same event or another one for that orderId, are
// Unchanged and write nothing.
//
// Errors wrap domain.ErrStoreUnavailable when the store cannot be reached.
func (s *OrderService) Process(ctx context.Context, ev events.OrderCreatedEvent) (Outcome, error) {
	if ev.Data.Status != events.StatusNew {
		s.log.InfoContext(ctx, "skipping order with unhandled status",
			"order_id", ev.Data.OrderID, "status", ev.Data.Status)
		return Skipped, nil
	}

	shipping := s.shipping.Quote(ev.Data.Items, ev.Data.NumberOfItems)
	order := models.FromEvent(ev, shipping)

	applied, err := s.store.Upsert(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("commit order %s: %w", order.OrderID, err)
	}
	if !applied {
		s.log.InfoContext(ctx, "order already committed, event ignored",
			"order_id", order.OrderID, "event_id", order.EventID)
		return Unchanged, nil
	}

	s.log.InfoContext(ctx, "order stored",
		"order_id", order.OrderID,
		"event_id", order.EventID,
		"shipping_cost", order.ShippingCost.String(),
	)
	s.warm(ctx, order)
	return Stored, nil
}

// Get returns the materialized order, from the cache when possible.
// Returns domain.ErrOrderNotFound for unknown ids.
func (s *OrderService) Get(ctx context.Context, orderID string) (*models.MaterializedOrder, error) {
	if o := s.cached(ctx, orderID); o != nil {
		return o, nil
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.warm(ctx, o)
	return o, nil
}

func (s *OrderService) cached(ctx context.Context, orderID string) *models.MaterializedOrder {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.Get(ctx, orderID)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return nil
	case errors.Is(err, cache.ErrCacheCorrupt):
		s.evict(ctx, orderID, err)
		return nil
	case err != nil:
		s.log.WarnContext(ctx, "order cache read failed", "order_id", orderID, "error", err)
		return nil
	}
	var o models.MaterializedOrder
	if err := json.Unmarshal(c.Payload, &o); err != nil || o.OrderID != orderID {
		if err == nil {
			err = fmt.Errorf("cached payload is for order %q", o.OrderID)
		}
		s.evict(ctx, orderID, err)
		return nil
	}
	return &o
}

// evict drops an unreadable cache entry so the next read refills it.
func (s *OrderService) evict(ctx context.Context, orderID string, cause error) {
	s.log.WarnContext(ctx, "evicting unreadable order cache entry", "order_id", orderID, "error", cause)
	if err := s.cache.Delete(ctx, orderID); err != nil {
		s.log.WarnContext(ctx, "order cache evict failed", "order_id", orderID, "error", err)
	}
}

// warm is best-effort: failures are logged and never surface.
func (s *OrderService) warm(ctx context.Context, o *models.MaterializedOrder) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(o)
	if err == nil {
		err = s.cache.Set(ctx, &cache.CachedOrder{
			OrderID:  o.OrderID,
			Status:   string(o.Status),
			Payload:  payload,
			CachedAt: s.now(),
		})
	}
	if err != nil {
		s.log.WarnContext(ctx, "order cache warm failed", "order_id", o.OrderID, "error", err)
	}
}

// IsTransient reports whether err may succeed on redelivery.
func IsTransient(err error) bool {
	return errors.Is(err, orderdomain.ErrStoreUnavailable)
}
