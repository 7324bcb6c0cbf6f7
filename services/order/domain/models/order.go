package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/events"
)

// Status is the lifecycle state of a materialized order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// OrderLine is one item of a materialized order.
type OrderLine struct {
	ItemID    string          `json:"itemId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// LineTotal returns price × quantity rounded to cents, half to even.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).RoundBank(2)
}

// MaterializedOrder is the orders service's record of an announced order,
// enriched with its shipping cost. Only the consumer creates or updates it.
// A pending record may still be replaced; a completed one is final.
type MaterializedOrder struct {
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	OrderDate     time.Time       `json:"orderDate"`
	NumberOfItems int             `json:"numberOfItems"`
	Items         []OrderLine     `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	Status        Status          `json:"status"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	ReceivedAt    time.Time       `json:"receivedAt"`
}

// FromEvent materializes ev as a completed order with the given shipping
// cost. Every field derives from ev and shipping, so the same event always
// yields the same record.
func FromEvent(ev events.OrderCreatedEvent, shipping decimal.Decimal) *MaterializedOrder {
	d := ev.Data
	lines := make([]OrderLine, len(d.Items))
	for i, it := range d.Items {
		lines[i] = OrderLine{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			LineTotal: LineTotal(it.Price, it.Quantity),
		}
	}
	return &MaterializedOrder{
		OrderID:       d.OrderID,
		CustomerID:    d.CustomerID,
		OrderDate:     d.OrderDate,
		NumberOfItems: d.NumberOfItems,
		Items:         lines,
		TotalAmount:   d.TotalAmount,
		Currency:      d.Currency,
		ShippingCost:  shipping,
		Status:        StatusCompleted,
		EventID:       ev.EventID.String(),
		EventType:     ev.EventType,
		ReceivedAt:    ev.Timestamp.UTC(),
	}
}

// IsCompleted reports whether the order has reached its final state.
func (o *MaterializedOrder) IsCompleted() bool {
	return o.Status == StatusCompleted
}
