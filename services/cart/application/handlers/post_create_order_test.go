package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/messaging/messagingtest"
	"github.com/ghuser/orderflow/services/cart/application/api"
	"github.com/ghuser/orderflow/services/cart/application/handlers"
	appsvcs "github.com/ghuser/orderflow/services/cart/application/services"
)

const (
	testExchange = "orders_exchange"
	testQueue    = "order_service_new_orders"
)

type fixture struct {
	broker *messagingtest.Broker
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := messagingtest.NewBroker()
	conn := messaging.NewConnection("amqp://test/", "cart-test", logger.Discard(), messaging.WithDialer(b.Dial))
	t.Cleanup(func() { _ = conn.Close() })

	topo := messaging.NewTopology(conn, logger.Discard())
	if _, err := topo.DeclareExchange(context.Background(), testExchange, true); err != nil {
		t.Fatalf("declare exchange: %v", err)
	}
	if _, err := topo.DeclareQueueAndBind(context.Background(), messaging.QueueSpec{
		Name: testQueue, Durable: true, Exchange: testExchange, Pattern: "new.*",
	}); err != nil {
		t.Fatalf("declare queue: %v", err)
	}

	svcs, err := appsvcs.New(&app.Application{
		Config: &config.Config{
			ExchangeName:      testExchange,
			OrderRegistry:     config.BackendMemory,
			PublisherConfirms: true,
		},
		Logger: logger.Discard(),
		Broker: conn,
	})
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	t.Cleanup(func() { _ = svcs.Publisher.Close() })

	r := chi.NewRouter()
	api.CartRoutes(r, svcs)
	return &fixture{broker: b, router: r}
}

func (f *fixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/create-order", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestCreateOrder_PublishesEvent(t *testing.T) {
	f := newFixture(t)

	rr := f.post(`{"orderId":"X1","numberOfItems":3}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp handlers.CreateOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "X1" || resp.NumberOfItems != 3 || len(resp.Items) != 3 {
		t.Fatalf("unexpected order: %+v", resp)
	}
	if resp.Status != events.StatusNew || resp.RoutingKey != "new.X1" {
		t.Fatalf("unexpected status/routing key: %q %q", resp.Status, resp.RoutingKey)
	}
	if !strings.HasPrefix(resp.CustomerID, "CUST_") {
		t.Errorf("unexpected customer id %q", resp.CustomerID)
	}

	ready := f.broker.Ready(testQueue)
	if len(ready) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(ready))
	}
	d := ready[0]
	if d.RoutingKey != "new.X1" || d.MessageId != resp.MessageID {
		t.Fatalf("unexpected delivery: key=%q id=%q", d.RoutingKey, d.MessageId)
	}

	ev, err := events.ParseOrderCreated(d.Body)
	if err != nil {
		t.Fatalf("published body does not parse: %v", err)
	}
	if ev.EventID.String() != resp.EventID {
		t.Errorf("event id mismatch: %s vs %s", ev.EventID, resp.EventID)
	}
	if !ev.Data.TotalAmount.Equal(resp.TotalAmount) {
		t.Errorf("total mismatch: %s vs %s", ev.Data.TotalAmount, resp.TotalAmount)
	}
}

func TestCreateOrder_DuplicateConflict(t *testing.T) {
	f := newFixture(t)

	if rr := f.post(`{"orderId":"X1","numberOfItems":1}`); rr.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rr.Code)
	}
	rr := f.post(`{"orderId":"X1","numberOfItems":1}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if n := f.broker.Stats(testQueue).Ready; n != 1 {
		t.Fatalf("expected exactly one published event, got %d", n)
	}
}

func TestCreateOrder_RequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{"orderId":`, http.StatusBadRequest},
		{"wrong type", `{"orderId":"X1","numberOfItems":"three"}`, http.StatusBadRequest},
		{"missing orderId", `{"numberOfItems":1}`, http.StatusUnprocessableEntity},
		{"missing numberOfItems", `{"orderId":"X1"}`, http.StatusUnprocessableEntity},
		{"negative numberOfItems", `{"orderId":"X1","numberOfItems":-1}`, http.StatusUnprocessableEntity},
		{"dotted orderId", `{"orderId":"X.1","numberOfItems":1}`, http.StatusUnprocessableEntity},
		{"wildcard orderId", `{"orderId":"*","numberOfItems":1}`, http.StatusUnprocessableEntity},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.post(tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
	if n := f.broker.Stats(testQueue).Ready; n != 0 {
		t.Fatalf("rejected requests must not publish, got %d messages", n)
	}
}

func TestCreateOrder_BrokerDown(t *testing.T) {
	f := newFixture(t)
	f.broker.SetDown(true)

	rr := f.post(`{"orderId":"X1","numberOfItems":1}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}

	f.broker.SetDown(false)
	if rr := f.post(`{"orderId":"X1","numberOfItems":1}`); rr.Code != http.StatusCreated {
		t.Fatalf("retry after outage: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}
