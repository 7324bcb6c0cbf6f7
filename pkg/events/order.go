// Package events defines the order event contract shared by the cart and
// orders services, and its mapping onto watermill messages.
//
// Wire format: a JSON envelope carried as the AMQP body.
//
//	{
//	  "event_id": "…", "event_type": "order_created", "version": 1,
//	  "timestamp": "2025-01-15T10:30:00Z",
//	  "data": {"orderId": "X1", "customerId": "CUST_AB12CD34", …}
//	}
//
// Headers event_type, order_id and customer_id duplicate envelope fields so
// brokers and tooling can inspect a message without parsing the body.
// Amounts are decimal strings.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// EventTypeOrderCreated is the only event type the pipeline carries.
	EventTypeOrderCreated = "order_created"
	// SchemaVersion is bumped on breaking changes to OrderData.
	SchemaVersion = 1
	// StatusNew is the status of every freshly created order.
	StatusNew = "new"
)

// Header names set on every published order event.
const (
	HeaderEventType  = "event_type"
	HeaderOrderID    = "order_id"
	HeaderCustomerID = "customer_id"
)

// Currency codes accepted on orders.
const (
	CurrencyUSD = "USD"
	CurrencyILS = "ILS"
)

// Currencies lists every accepted currency code.
var Currencies = []string{CurrencyUSD, CurrencyILS}

// ErrInvalidEvent indicates a body that does not satisfy the contract.
var ErrInvalidEvent = errors.New("invalid order event")

// OrderItem is one line of an order.
type OrderItem struct {
	ItemID   string          `json:"itemId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderData is the order as announced by the cart service.
type OrderData struct {
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	OrderDate     time.Time       `json:"orderDate"`
	NumberOfItems int             `json:"numberOfItems"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
}

// OrderCreatedEvent is the envelope published for a new order. It is
// immutable once published.
type OrderCreatedEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      OrderData `json:"data"`
}

// NewOrderCreated wraps data in a fresh envelope stamped at now.
func NewOrderCreated(data OrderData, now time.Time) OrderCreatedEvent {
	return OrderCreatedEvent{
		EventID:   uuid.New(),
		EventType: EventTypeOrderCreated,
		Version:   SchemaVersion,
		Timestamp: now.UTC(),
		Data:      data,
	}
}

// Total returns the sum of price × quantity over items.
func Total(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// Validate checks the structural invariants of the order: identifiers
// present, numberOfItems ≥ 1 and equal to len(items), positive quantities,
// non-negative prices, a known currency and a totalAmount equal to the sum
// of the lines. Status is not checked; callers decide which statuses they
// handle.
func (d OrderData) Validate() error {
	switch {
	case d.OrderID == "":
		return fmt.Errorf("%w: orderId is required", ErrInvalidEvent)
	case d.CustomerID == "":
		return fmt.Errorf("%w: customerId is required", ErrInvalidEvent)
	case d.Status == "":
		return fmt.Errorf("%w: status is required", ErrInvalidEvent)
	case d.NumberOfItems < 1:
		return fmt.Errorf("%w: numberOfItems must be at least 1 (got %d)", ErrInvalidEvent, d.NumberOfItems)
	case len(d.Items) != d.NumberOfItems:
		return fmt.Errorf("%w: numberOfItems is %d but %d items present", ErrInvalidEvent, d.NumberOfItems, len(d.Items))
	}
	for i, it := range d.Items {
		if it.ItemID == "" {
			return fmt.Errorf("%w: items[%d].itemId is required", ErrInvalidEvent, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1 (got %d)", ErrInvalidEvent, i, it.Quantity)
		}
		if it.Price.IsNegative() {
			return fmt.Errorf("%w: items[%d].price must not be negative", ErrInvalidEvent, i)
		}
	}
	if !knownCurrency(d.Currency) {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidEvent, d.Currency)
	}
	if want := Total(d.Items); !d.TotalAmount.Equal(want) {
		return fmt.Errorf("%w: totalAmount %s does not match items total %s", ErrInvalidEvent, d.TotalAmount, want)
	}
	return nil
}

func knownCurrency(c string) bool {
	for _, known := range Currencies {
		if c == known {
			return true
		}
	}
	return false
}

// ToMessage serializes e into a watermill message keyed by its event id,
// with the contract headers set as metadata.
func (e OrderCreatedEvent) ToMessage() (*message.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", e.EventType, err)
	}
	msg := message.NewMessage(e.EventID.String(), body)
	msg.Metadata.Set(HeaderEventType, e.EventType)
	msg.Metadata.Set(HeaderOrderID, e.Data.OrderID)
	msg.Metadata.Set(HeaderCustomerID, e.Data.CustomerID)
	return msg, nil
}

// ParseOrderCreated decodes and validates an order_created envelope.
// Every failure wraps ErrInvalidEvent.
func ParseOrderCreated(payload []byte) (OrderCreatedEvent, error) {
	var e OrderCreatedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return OrderCreatedEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.EventType != EventTypeOrderCreated {
		return OrderCreatedEvent{}, fmt.Errorf("%w: unexpected event_type %q", ErrInvalidEvent, e.EventType)
	}
	if e.EventID == uuid.Nil {
		return OrderCreatedEvent{}, fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if e.Timestamp.IsZero() {
		return OrderCreatedEvent{}, fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if err := e.Data.Validate(); err != nil {
		return OrderCreatedEvent{}, err
	}
	return e, nil
}
