// Package postgres is the PostgreSQL order store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/database"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
	"github.com/ghuser/orderflow/services/order/domain/models"
)

// Amounts travel as text so numeric precision never passes through float64.
const upsertOrder = `
INSERT INTO orders (
	order_id, customer_id, order_date, number_of_items, items,
	total_amount, currency, shipping_cost, status,
	event_id, event_type, received_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5::jsonb,
	$6::numeric, $7, $8::numeric, $9,
	$10, $11, $12, now()
)
ON CONFLICT (order_id) DO UPDATE SET
	customer_id     = EXCLUDED.customer_id,
	order_date      = EXCLUDED.order_date,
	number_of_items = EXCLUDED.number_of_items,
	items           = EXCLUDED.items,
	total_amount    = EXCLUDED.total_amount,
	currency        = EXCLUDED.currency,
	shipping_cost   = EXCLUDED.shipping_cost,
	status          = EXCLUDED.status,
	event_id        = EXCLUDED.event_id,
	event_type      = EXCLUDED.event_type,
	received_at     = EXCLUDED.received_at,
	updated_at      = now()
WHERE orders.status <> 'completed'
RETURNING order_id`

const selectOrder = `
SELECT order_id, customer_id, order_date, number_of_items, items,
	total_amount::text, currency, shipping_cost::text, status,
	event_id::text, event_type, received_at
FROM orders
WHERE order_id = $1`

// OrderStore implements repositories.OrderStore against PostgreSQL.
type OrderStore struct {
	db *database.Database
}

// NewOrderStore returns an OrderStore backed by the given pool.
func NewOrderStore(db *database.Database) *OrderStore {
	return &OrderStore{db: db}
}

// Upsert writes order unless a completed row already exists for its id;
// a pending row is replaced.
// The conflict clause makes the check and the write a single statement.
func (s *OrderStore) Upsert(ctx context.Context, order *models.MaterializedOrder) (bool, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return false, fmt.Errorf("marshal items: %w", err)
	}

	var id string
	err = s.db.Pool().QueryRow(ctx, upsertOrder,
		order.OrderID,
		order.CustomerID,
		order.OrderDate,
		order.NumberOfItems,
		items,
		order.TotalAmount.String(),
		order.Currency,
		order.ShippingCost.String(),
		string(order.Status),
		order.EventID,
		order.EventType,
		order.ReceivedAt,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: upsert order %s: %w", orderdomain.ErrStoreUnavailable, order.OrderID, err)
	}
	return true, nil
}

// Get retrieves an order by id. Returns ErrOrderNotFound if not found.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*models.MaterializedOrder, error) {
	var (
		o                   models.MaterializedOrder
		items               []byte
		total, shipping     string
		status              string
		orderDate, received time.Time
	)
	err := s.db.Pool().QueryRow(ctx, selectOrder, orderID).Scan(
		&o.OrderID, &o.CustomerID, &orderDate, &o.NumberOfItems, &items,
		&total, &o.Currency, &shipping, &status,
		&o.EventID, &o.EventType, &received,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", orderdomain.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("%w: query order %s: %w", orderdomain.ErrStoreUnavailable, orderID, err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", orderID, err)
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total of order %s: %w", orderID, err)
	}
	if o.ShippingCost, err = decimal.NewFromString(shipping); err != nil {
		return nil, fmt.Errorf("decode shipping of order %s: %w", orderID, err)
	}
	o.Status = models.Status(status)
	o.OrderDate = orderDate.UTC()
	o.ReceivedAt = received.UTC()
	return &o, nil
}
