package repositories

import (
	"context"

	"github.com/ghuser/orderflow/services/order/domain/models"
)

// OrderStore persists materialized orders keyed by orderId.
//
// Upsert is atomic per key. It inserts an absent order, replaces a pending
// one and leaves a completed one untouched; applied reports whether the
// store changed. Get returns domain.ErrOrderNotFound for unknown ids.
// Infrastructure failures wrap domain.ErrStoreUnavailable.
type OrderStore interface {
	Upsert(ctx context.Context, order *models.MaterializedOrder) (applied bool, err error)
	Get(ctx context.Context, orderID string) (*models.MaterializedOrder, error)
}
