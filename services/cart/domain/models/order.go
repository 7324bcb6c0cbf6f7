package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/events"
)

// Item is one generated order line.
type Item struct {
	ID       string
	Quantity int
	Price    decimal.Decimal
}

// Order is the aggregate the cart service creates and announces.
type Order struct {
	ID         string
	CustomerID string
	CreatedAt  time.Time
	Items      []Item
	Total      decimal.Decimal
	Currency   string
	Status     string
}

// NewOrder assembles a new order and computes its total.
func NewOrder(id, customerID string, items []Item, currency string, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order must have at least one item")
	}
	o := &Order{
		ID:         id,
		CustomerID: customerID,
		CreatedAt:  now.UTC(),
		Items:      items,
		Currency:   currency,
		Status:     events.StatusNew,
	}
	o.Total = events.Total(o.lines())
	return o, nil
}

// Data returns the order in its published form.
func (o *Order) Data() events.OrderData {
	return events.OrderData{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		OrderDate:     o.CreatedAt,
		NumberOfItems: len(o.Items),
		Items:         o.lines(),
		TotalAmount:   o.Total,
		Currency:      o.Currency,
		Status:        o.Status,
	}
}

func (o *Order) lines() []events.OrderItem {
	lines := make([]events.OrderItem, len(o.Items))
	for i, it := range o.Items {
		lines[i] = events.OrderItem{ItemID: it.ID, Quantity: it.Quantity, Price: it.Price}
	}
	return lines
}
