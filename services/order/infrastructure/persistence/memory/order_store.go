// Package memory is the in-process order store.
package memory

import (
	"context"
	"fmt"
	"sync"

	orderdomain "github.com/ghuser/orderflow/services/order/domain"
	"github.com/ghuser/orderflow/services/order/domain/models"
)

// OrderStore keeps orders in a sync.Map. Each key is updated by
// compare-and-swap so concurrent upserts of one order never interleave.
type OrderStore struct {
	orders sync.Map // orderID → *models.MaterializedOrder
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{}
}

// Upsert inserts an absent order and replaces a pending one. A completed
// order is left untouched and applied is false.
func (s *OrderStore) Upsert(ctx context.Context, order *models.MaterializedOrder) (bool, error) {
	next := clone(order)
	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w: %w", orderdomain.ErrStoreUnavailable, err)
		}
		prev, loaded := s.orders.LoadOrStore(order.OrderID, next)
		if !loaded {
			return true, nil
		}
		if prev.(*models.MaterializedOrder).IsCompleted() {
			return false, nil
		}
		if s.orders.CompareAndSwap(order.OrderID, prev, next) {
			return true, nil
		}
	}
}

// Get returns a copy of the stored order.
func (s *OrderStore) Get(_ context.Context, orderID string) (*models.MaterializedOrder, error) {
	v, ok := s.orders.Load(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", orderdomain.ErrOrderNotFound, orderID)
	}
	return clone(v.(*models.MaterializedOrder)), nil
}

func clone(o *models.MaterializedOrder) *models.MaterializedOrder {
	c := *o
	c.Items = append([]models.OrderLine(nil), o.Items...)
	return &c
}
