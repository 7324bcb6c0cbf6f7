package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/services/order/application/api"
	"github.com/ghuser/orderflow/services/order/application/handlers"
	appsvcs "github.com/ghuser/orderflow/services/order/application/services"
	"github.com/ghuser/orderflow/services/order/domain/models"
	domainsvcs "github.com/ghuser/orderflow/services/order/domain/services"
	"github.com/ghuser/orderflow/services/order/infrastructure/persistence/memory"
)

func newRouter(t *testing.T, store *memory.OrderStore) http.Handler {
	t.Helper()
	policy, err := domainsvcs.NewPercentPolicy(domainsvcs.DefaultShippingRate)
	if err != nil {
		t.Fatal(err)
	}
	svcs := &appsvcs.Services{Order: appsvcs.NewOrderService(store, policy, nil, logger.Discard())}
	r := chi.NewRouter()
	api.OrderRoutes(r, svcs)
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rr
}

func TestGetOrderDetails_Found(t *testing.T) {
	store := memory.NewOrderStore()
	_, err := store.Upsert(context.Background(), &models.MaterializedOrder{
		OrderID:       "X1",
		CustomerID:    "CUST_1",
		OrderDate:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		NumberOfItems: 1,
		Items: []models.OrderLine{{
			ItemID: "A1", Quantity: 3,
			Price: decimal.RequireFromString("1.10"), LineTotal: decimal.RequireFromString("3.30"),
		}},
		TotalAmount:  decimal.RequireFromString("3.30"),
		Currency:     events.CurrencyUSD,
		ShippingCost: decimal.RequireFromString("0.07"),
		Status:       models.StatusCompleted,
		EventID:      "e1",
		EventType:    events.EventTypeOrderCreated,
		ReceivedAt:   time.Date(2025, 1, 15, 10, 30, 1, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	rr := get(newRouter(t, store), "/order-details?orderId=X1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp handlers.OrderDetailsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderID != "X1" || resp.Status != "completed" || len(resp.Items) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.ShippingCost.Equal(decimal.RequireFromString("0.07")) {
		t.Errorf("unexpected shipping cost %s", resp.ShippingCost)
	}
	if !resp.Items[0].LineTotal.Equal(decimal.RequireFromString("3.3")) {
		t.Errorf("unexpected line total %s", resp.Items[0].LineTotal)
	}

	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["shippingCost"] != "0.07" {
		t.Errorf("amounts are serialized as decimal strings, got %#v", raw["shippingCost"])
	}
}

func TestGetOrderDetails_NotFound(t *testing.T) {
	rr := get(newRouter(t, memory.NewOrderStore()), "/order-details?orderId=missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetOrderDetails_MissingOrderID(t *testing.T) {
	rr := get(newRouter(t, memory.NewOrderStore()), "/order-details")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
