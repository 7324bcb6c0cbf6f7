package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ghuser/orderflow/pkg/database"
	"github.com/ghuser/orderflow/pkg/migrator"
	orderdomain "github.com/ghuser/orderflow/services/order/domain"
	"github.com/ghuser/orderflow/services/order/domain/models"
	"github.com/ghuser/orderflow/services/order/infrastructure/persistence/postgres"
)

const migrationsDir = "../../../../../migrations/orders"

type OrderStoreIntegrationSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *database.Database
	store     *postgres.OrderStore
}

func (s *OrderStoreIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("orders"),
		tcpostgres.WithUsername("orderflow"),
		tcpostgres.WithPassword("orderflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.Require().NoError(migrator.RunMigrations(ctx, dsn, os.DirFS(migrationsDir)))

	s.db, err = database.Connect(ctx, dsn)
	s.Require().NoError(err)
	s.store = postgres.NewOrderStore(s.db)
}

func (s *OrderStoreIntegrationSuite) SetupTest() {
	_, err := s.db.Pool().Exec(context.Background(), "TRUNCATE TABLE orders")
	s.Require().NoError(err)
}

func (s *OrderStoreIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *OrderStoreIntegrationSuite) order(shipping string, status models.Status) *models.MaterializedOrder {
	return &models.MaterializedOrder{
		OrderID:       "X1",
		CustomerID:    "CUST_1",
		OrderDate:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		NumberOfItems: 2,
		Items: []models.OrderLine{
			{ItemID: "A1", Quantity: 2, Price: decimal.RequireFromString("10.25"), LineTotal: decimal.RequireFromString("20.50")},
			{ItemID: "B2", Quantity: 1, Price: decimal.RequireFromString("5.10"), LineTotal: decimal.RequireFromString("5.10")},
		},
		TotalAmount:  decimal.RequireFromString("25.60"),
		Currency:     "ILS",
		ShippingCost: decimal.RequireFromString(shipping),
		Status:       status,
		EventID:      "123e4567-e89b-12d3-a456-426614174000",
		EventType:    "order_created",
		ReceivedAt:   time.Date(2025, 1, 15, 10, 30, 1, 0, time.UTC),
	}
}

func (s *OrderStoreIntegrationSuite) TestRoundTrip() {
	ctx := context.Background()
	applied, err := s.store.Upsert(ctx, s.order("0.51", models.StatusCompleted))
	s.Require().NoError(err)
	s.True(applied)

	got, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal("CUST_1", got.CustomerID)
	s.Equal("ILS", got.Currency)
	s.Equal(models.StatusCompleted, got.Status)
	s.Len(got.Items, 2)
	s.True(got.TotalAmount.Equal(decimal.RequireFromString("25.6")))
	s.True(got.ShippingCost.Equal(decimal.RequireFromString("0.51")))
	s.True(got.Items[0].LineTotal.Equal(decimal.RequireFromString("20.5")))
	s.True(got.OrderDate.Equal(time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)))
	s.Equal("123e4567-e89b-12d3-a456-426614174000", got.EventID)
}

func (s *OrderStoreIntegrationSuite) TestCommitTwice() {
	ctx := context.Background()
	applied, err := s.store.Upsert(ctx, s.order("0.51", models.StatusCompleted))
	s.Require().NoError(err)
	s.True(applied)
	first, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)

	applied, err = s.store.Upsert(ctx, s.order("9.99", models.StatusCompleted))
	s.Require().NoError(err)
	s.False(applied)
	second, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal(first, second)

	var n int
	s.Require().NoError(s.db.Pool().QueryRow(ctx, "SELECT count(*) FROM orders").Scan(&n))
	s.Equal(1, n)
}

func (s *OrderStoreIntegrationSuite) TestPendingIsReplaced() {
	ctx := context.Background()
	_, err := s.store.Upsert(ctx, s.order("0.51", models.StatusPending))
	s.Require().NoError(err)

	applied, err := s.store.Upsert(ctx, s.order("0.75", models.StatusCompleted))
	s.Require().NoError(err)
	s.True(applied)

	got, err := s.store.Get(ctx, "X1")
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.True(got.ShippingCost.Equal(decimal.RequireFromString("0.75")))
}

func (s *OrderStoreIntegrationSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), "nope")
	s.ErrorIs(err, orderdomain.ErrOrderNotFound)
}

func (s *OrderStoreIntegrationSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.store.Upsert(ctx, s.order("0.51", models.StatusCompleted))
	s.ErrorIs(err, orderdomain.ErrStoreUnavailable)
}

func TestOrderStoreIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("set INTEGRATION=1 to run against a postgres container")
	}
	suite.Run(t, new(OrderStoreIntegrationSuite))
}
