package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func validData() OrderData {
	items := []OrderItem{
		{ItemID: "A1B2C3", Quantity: 2, Price: decimal.RequireFromString("10.50")},
		{ItemID: "D4E5F6", Quantity: 1, Price: decimal.RequireFromString("99.99")},
	}
	return OrderData{
		OrderID:       "X1",
		CustomerID:    "CUST_AB12CD34",
		OrderDate:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		NumberOfItems: 2,
		Items:         items,
		TotalAmount:   Total(items),
		Currency:      CurrencyUSD,
		Status:        StatusNew,
	}
}

func TestTotal(t *testing.T) {
	got := Total(validData().Items)
	if !got.Equal(decimal.RequireFromString("120.99")) {
		t.Fatalf("expected 120.99, got %s", got)
	}
	if !Total(nil).IsZero() {
		t.Fatal("expected zero total for no items")
	}
}

func TestOrderCreated_ToMessageAndParse(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 30, 1, 0, time.UTC)
	ev := NewOrderCreated(validData(), now)

	msg, err := ev.ToMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.UUID != ev.EventID.String() {
		t.Errorf("expected message id %s, got %s", ev.EventID, msg.UUID)
	}
	for k, want := range map[string]string{
		HeaderEventType:  EventTypeOrderCreated,
		HeaderOrderID:    "X1",
		HeaderCustomerID: "CUST_AB12CD34",
	} {
		if got := msg.Metadata.Get(k); got != want {
			t.Errorf("header %s: expected %q, got %q", k, want, got)
		}
	}

	parsed, err := ParseOrderCreated(msg.Payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.EventID != ev.EventID || parsed.Version != SchemaVersion || !parsed.Timestamp.Equal(now) {
		t.Errorf("envelope mismatch: %+v", parsed)
	}
	if !parsed.Data.TotalAmount.Equal(ev.Data.TotalAmount) {
		t.Errorf("expected total %s, got %s", ev.Data.TotalAmount, parsed.Data.TotalAmount)
	}
}

func TestOrderCreated_AmountsAreDecimalStrings(t *testing.T) {
	body, err := json.Marshal(NewOrderCreated(validData(), time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(body), `"totalAmount":"120.99"`) {
		t.Errorf("expected quoted totalAmount in %s", body)
	}
	if !strings.Contains(string(body), `"price":"10.5"`) {
		t.Errorf("expected quoted price in %s", body)
	}
}

func TestParseOrderCreated_AcceptsNumericAmounts(t *testing.T) {
	body := `{"event_id":"6f1c1f4e-7c4d-4bfb-9c55-0a0d5d8e8a11","event_type":"order_created","version":1,
	"timestamp":"2025-01-15T10:30:00Z","data":{"orderId":"X1","customerId":"CUST_1","orderDate":"2025-01-15T10:30:00Z",
	"numberOfItems":1,"items":[{"itemId":"AAAAAA","quantity":3,"price":12.5}],"totalAmount":37.5,"currency":"ILS","status":"new"}}`

	ev, err := ParseOrderCreated([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.Data.TotalAmount.Equal(decimal.RequireFromString("37.5")) {
		t.Errorf("unexpected total %s", ev.Data.TotalAmount)
	}
}

func TestParseOrderCreated_Rejects(t *testing.T) {
	encode := func(mutate func(*OrderCreatedEvent)) []byte {
		ev := NewOrderCreated(validData(), time.Now())
		mutate(&ev)
		b, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	cases := map[string][]byte{
		"not json":           []byte("{not json"),
		"empty body":         nil,
		"wrong event type":   encode(func(e *OrderCreatedEvent) { e.EventType = "order_shipped" }),
		"missing event id":   encode(func(e *OrderCreatedEvent) { e.EventID = uuid.Nil }),
		"missing timestamp":  encode(func(e *OrderCreatedEvent) { e.Timestamp = time.Time{} }),
		"missing order id":   encode(func(e *OrderCreatedEvent) { e.Data.OrderID = "" }),
		"missing customer":   encode(func(e *OrderCreatedEvent) { e.Data.CustomerID = "" }),
		"missing status":     encode(func(e *OrderCreatedEvent) { e.Data.Status = "" }),
		"zero items":         encode(func(e *OrderCreatedEvent) { e.Data.NumberOfItems = 0; e.Data.Items = nil; e.Data.TotalAmount = decimal.Zero }),
		"count mismatch":     encode(func(e *OrderCreatedEvent) { e.Data.NumberOfItems = 3 }),
		"zero quantity":      encode(func(e *OrderCreatedEvent) { e.Data.Items[0].Quantity = 0 }),
		"negative price":     encode(func(e *OrderCreatedEvent) { e.Data.Items[1].Price = decimal.RequireFromString("-1") }),
		"missing item id":    encode(func(e *OrderCreatedEvent) { e.Data.Items[0].ItemID = "" }),
		"unknown currency":   encode(func(e *OrderCreatedEvent) { e.Data.Currency = "EUR" }),
		"total mismatch":     encode(func(e *OrderCreatedEvent) { e.Data.TotalAmount = decimal.RequireFromString("1.00") }),
		"price not a number": []byte(`{"event_type":"order_created","data":{"items":[{"price":"abc"}]}}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrderCreated(body)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestValidate_StatusIsNotRestricted(t *testing.T) {
	d := validData()
	d.Status = "shipped"
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
