package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/ghuser/orderflow/docs/orders"
	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/database"
	"github.com/ghuser/orderflow/pkg/httpx"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/telemetry"
	orderApi "github.com/ghuser/orderflow/services/order/application/api"
	orderConsumer "github.com/ghuser/orderflow/services/order/application/consumer"
	orderSvcs "github.com/ghuser/orderflow/services/order/application/services"
)

// @title			Orders Service API
// @version		1.0
// @description	Serves orders materialized from order_created events.
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
// @BasePath		/
// @schemes		http https
func main() {
	cfg, err := config.Load(config.BinaryOrders)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(context.Background()) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	if err := run(ctx, cfg, log, metricsHandler); err != nil {
		log.Error("orders service stopped", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: deferred flushes are best-effort
	}
	log.Info("orders service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, metrics http.Handler) error {
	conn := messaging.NewConnection(cfg.RabbitMQURL, cfg.ServiceName, log)
	defer conn.Close() //nolint:errcheck

	checks := httpx.HealthChecks{"rabbitmq": conn}
	appConfig := &app.Application{
		Config: cfg,
		Logger: log,
		Broker: conn,
	}

	if cfg.OrderStore == config.BackendPostgres {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("database pool connected")
		appConfig.Db = db
		checks["database"] = db
	}

	if cfg.OrderCache {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck
		log.Info("redis connected")
		appConfig.Redis = rc
		checks["redis"] = rc
	}

	svcs, err := orderSvcs.New(appConfig)
	if err != nil {
		return err
	}

	// The consumer owns its queue and binding; the exchange belongs to the
	// cart service, so wait for it to appear.
	if _, err := messaging.NewTopology(conn, log).AwaitQueueAndBind(ctx, messaging.QueueSpec{
		Name:               cfg.QueueName,
		Durable:            true,
		Exchange:           cfg.ExchangeName,
		Pattern:            cfg.BindingPattern,
		DeadLetterExchange: cfg.DeadLetterExchange,
	}, cfg.TopologyMaxWait); err != nil {
		return err
	}

	consumer := messaging.NewConsumer(conn, messaging.ConsumerConfig{
		Queue:           cfg.QueueName,
		Tag:             cfg.ServiceName,
		Prefetch:        cfg.Prefetch,
		RedeliveryDelay: cfg.RedeliveryDelay,
		DrainTimeout:    cfg.ConsumerDrainTimeout,
		DeadLettering:   cfg.DeadLetterExchange != "",
	}, log)
	handler := orderConsumer.NewOrderCreatedHandler(svcs.Order, log)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	r.Get("/", httpx.BannerHandler(httpx.Banner{
		Service: cfg.ServiceName,
		Version: cfg.ServiceVersion,
		Docs:    "/swagger/index.html",
		Health:  "/health",
	}))
	r.Get("/health", httpx.HealthHandler(cfg.ServiceName, checks))
	r.Get("/metrics", metrics.ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.InstanceName("orders"),
	))
	orderApi.OrderRoutes(r, svcs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consumer starting", "queue", cfg.QueueName, "pattern", cfg.BindingPattern, "prefetch", cfg.Prefetch)
		return consumer.Run(gctx, handler.Handle)
	})
	g.Go(func() error {
		return httpx.Serve(gctx, httpx.NewServer(cfg.OrdersAddr, r), 30*time.Second, log)
	})
	return g.Wait()
}
