package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/pkg/logger"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
	"github.com/ghuser/orderflow/services/order/domain/models"
	domainsvcs "github.com/ghuser/orderflow/services/order/domain/services"
	"github.com/ghuser/orderflow/services/order/infrastructure/persistence/memory"
)

func newEvent(orderID, status string) events.OrderCreatedEvent {
	items := []events.OrderItem{
		{ItemID: "A1", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		{ItemID: "B2", Quantity: 1, Price: decimal.RequireFromString("5.50")},
	}
	now := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	return events.NewOrderCreated(events.OrderData{
		OrderID:       orderID,
		CustomerID:    "CUST_1",
		OrderDate:     now,
		NumberOfItems: len(items),
		Items:         items,
		TotalAmount:   events.Total(items),
		Currency:      events.CurrencyUSD,
		Status:        status,
	}, now)
}

type OrderServiceSuite struct {
	suite.Suite
	store *memory.OrderStore
	mr    *miniredis.Miniredis
	cache *cache.OrderCache
	svc   *OrderService
}

func (s *OrderServiceSuite) SetupTest() {
	s.store = memory.NewOrderStore()
	s.mr = miniredis.RunT(s.T())
	rdb := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = rdb.Close() })
	s.cache = cache.NewOrderCache(cache.WrapRedisClient(rdb))

	policy, err := domainsvcs.NewPercentPolicy(domainsvcs.DefaultShippingRate)
	s.Require().NoError(err)
	s.svc = NewOrderService(s.store, policy, s.cache, logger.Discard())
}

func (s *OrderServiceSuite) TestProcess_StoresWithShipping() {
	ctx := context.Background()
	ev := newEvent("X1", events.StatusNew)

	outcome, err := s.svc.Process(ctx, ev)
	s.Require().NoError(err)
	s.Equal(Stored, outcome)

	got, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.True(got.ShippingCost.Equal(decimal.RequireFromString("0.51")), got.ShippingCost.String())
	s.Equal(ev.EventID.String(), got.EventID)
	s.True(got.ReceivedAt.Equal(ev.Timestamp))

	cached, err := s.cache.Get(ctx, "X1")
	s.Require().NoError(err, "commit warms the cache")
	s.Equal(string(models.StatusCompleted), cached.Status)
}

func (s *OrderServiceSuite) TestProcess_TwiceIsIdempotent() {
	ctx := context.Background()
	ev := newEvent("X1", events.StatusNew)

	clock := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	s.svc.now = func() time.Time { return clock }

	outcome, err := s.svc.Process(ctx, ev)
	s.Require().NoError(err)
	s.Require().Equal(Stored, outcome)
	first, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)

	clock = clock.Add(3 * time.Hour)
	outcome, err = s.svc.Process(ctx, ev)
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)
	second, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)

	s.Require().Equal(first, second)
}

func (s *OrderServiceSuite) TestProcess_OtherEventForCommittedOrderUnchanged() {
	ctx := context.Background()
	first := newEvent("X1", events.StatusNew)
	_, err := s.svc.Process(ctx, first)
	s.Require().NoError(err)

	again := newEvent("X1", events.StatusNew)
	again.Data.Items = again.Data.Items[:1]
	again.Data.NumberOfItems = 1
	again.Data.TotalAmount = events.Total(again.Data.Items)
	s.Require().NotEqual(first.EventID, again.EventID)

	outcome, err := s.svc.Process(ctx, again)
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)

	got, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal(first.EventID.String(), got.EventID)
	s.Len(got.Items, 2)
}

func (s *OrderServiceSuite) TestGet_EvictsCorruptCacheEntry() {
	ctx := context.Background()
	s.mr.HSet("order:X1", "order_id", "X1", "status", "completed", "payload", "{not json", "cached_at", "yesterday")

	_, err := s.svc.Get(ctx, "X1")
	s.ErrorIs(err, orderdomain.ErrOrderNotFound)
	s.False(s.mr.Exists("order:X1"), "unreadable entry evicted")
}

func (s *OrderServiceSuite) TestGet_EvictsEntryForAnotherOrder() {
	ctx := context.Background()
	_, err := s.svc.Process(ctx, newEvent("X2", events.StatusNew))
	s.Require().NoError(err)
	payload := s.mr.HGet("order:X2", "payload")
	s.mr.HSet("order:X1", "order_id", "X1", "status", "completed", "payload", payload,
		"cached_at", time.Now().UTC().Format(time.RFC3339Nano))

	_, err = s.svc.Get(ctx, "X1")
	s.ErrorIs(err, orderdomain.ErrOrderNotFound)
	s.False(s.mr.Exists("order:X1"))
}

func (s *OrderServiceSuite) TestProcess_SkipsOtherStatuses() {
	outcome, err := s.svc.Process(context.Background(), newEvent("X1", "shipped"))
	s.Require().NoError(err)
	s.Equal(Skipped, outcome)

	_, err = s.store.Get(context.Background(), "X1")
	s.ErrorIs(err, orderdomain.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestGet_ReadsThroughCache() {
	ctx := context.Background()
	_, err := s.svc.Process(ctx, newEvent("X1", events.StatusNew))
	s.Require().NoError(err)

	s.mr.FlushAll()
	got, err := s.svc.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal("X1", got.OrderID)
	s.True(s.mr.Exists("order:X1"), "a store read refills the cache")

	got, err = s.svc.Get(ctx, "X1")
	s.Require().NoError(err)
	s.True(got.ShippingCost.Equal(decimal.RequireFromString("0.51")))
}

func (s *OrderServiceSuite) TestGet_CacheOutageFallsBackToStore() {
	ctx := context.Background()
	_, err := s.svc.Process(ctx, newEvent("X1", events.StatusNew))
	s.Require().NoError(err)

	s.mr.SetError("LOADING")
	got, err := s.svc.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal("X1", got.OrderID)
}

func (s *OrderServiceSuite) TestProcess_CacheOutageDoesNotFail() {
	s.mr.SetError("LOADING")
	outcome, err := s.svc.Process(context.Background(), newEvent("X1", events.StatusNew))
	s.Require().NoError(err)
	s.Equal(Stored, outcome)
}

func (s *OrderServiceSuite) TestGet_Unknown() {
	_, err := s.svc.Get(context.Background(), "nope")
	s.ErrorIs(err, orderdomain.ErrOrderNotFound)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

type downStore struct{}

func (downStore) Upsert(context.Context, *models.MaterializedOrder) (bool, error) {
	return false, orderdomain.ErrStoreUnavailable
}

func (downStore) Get(context.Context, string) (*models.MaterializedOrder, error) {
	return nil, orderdomain.ErrStoreUnavailable
}

func TestProcess_StoreUnavailableIsTransient(t *testing.T) {
	policy, _ := domainsvcs.NewPercentPolicy(domainsvcs.DefaultShippingRate)
	svc := NewOrderService(downStore{}, policy, nil, logger.Discard())

	_, err := svc.Process(context.Background(), newEvent("X1", events.StatusNew))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(errors.New("boom")))
}

func TestNewShippingPolicy(t *testing.T) {
	items := newEvent("X1", events.StatusNew).Data.Items

	p, err := NewShippingPolicy(&config.Config{ShippingPolicy: config.ShippingPercent, ShippingRate: "0.10"})
	require.NoError(t, err)
	assert.True(t, p.Quote(items, 2).Equal(decimal.RequireFromString("2.55")))

	p, err = NewShippingPolicy(&config.Config{
		ShippingPolicy:  config.ShippingTiered,
		ShippingBase:    "5",
		ShippingPerUnit: "1",
		ShippingCap:     "6",
	})
	require.NoError(t, err)
	assert.True(t, p.Quote(items, 2).Equal(decimal.RequireFromString("6")))

	_, err = NewShippingPolicy(&config.Config{ShippingPolicy: config.ShippingPercent, ShippingRate: "abc"})
	assert.Error(t, err)
	_, err = NewShippingPolicy(&config.Config{ShippingPolicy: "flat"})
	assert.Error(t, err)
}

func TestNew_BackendRequirements(t *testing.T) {
	base := config.Config{ShippingPolicy: config.ShippingPercent, ShippingRate: "0.02"}

	cfg := base
	cfg.OrderStore = config.BackendPostgres
	_, err := New(&app.Application{Config: &cfg, Logger: logger.Discard()})
	assert.Error(t, err, "postgres store without a database")

	cfg = base
	cfg.OrderCache = true
	_, err = New(&app.Application{Config: &cfg, Logger: logger.Discard()})
	assert.Error(t, err, "cache without redis")

	cfg = base
	cfg.OrderStore = config.BackendMemory
	svcs, err := New(&app.Application{Config: &cfg, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Order)
}
