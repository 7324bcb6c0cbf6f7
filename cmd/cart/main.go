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

	_ "github.com/ghuser/orderflow/docs/cart"
	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/httpx"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/pkg/telemetry"
	cartApi "github.com/ghuser/orderflow/services/cart/application/api"
	cartSvcs "github.com/ghuser/orderflow/services/cart/application/services"
)

// @title			Cart Service API
// @version		1.0
// @description	Creates orders and publishes them to the orders exchange.
// @license.name	MIT
// @license.url	https://opensource.org/licenses/MIT
// @BasePath		/
// @schemes		http https
func main() {
	cfg, err := config.Load(config.BinaryCart)
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
		log.Error("cart service stopped", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: deferred flushes are best-effort
	}
	log.Info("cart service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, metrics http.Handler) error {
	conn := messaging.NewConnection(cfg.RabbitMQURL, cfg.ServiceName, log)
	defer conn.Close() //nolint:errcheck

	// The producer owns the exchange. A broker that is still starting is
	// waited for; a conflicting exchange is fatal at once.
	if _, err := messaging.NewTopology(conn, log).AwaitExchange(ctx, cfg.ExchangeName, true, cfg.TopologyMaxWait); err != nil {
		return err
	}

	checks := httpx.HealthChecks{"rabbitmq": conn}

	var redisClient *cache.RedisClient
	if cfg.OrderRegistry == config.BackendRedis {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close() //nolint:errcheck
		log.Info("redis connected")
		redisClient = rc
		checks["redis"] = rc
	}

	appConfig := &app.Application{
		Config: cfg,
		Logger: log,
		Broker: conn,
		Redis:  redisClient,
	}

	svcs, err := cartSvcs.New(appConfig)
	if err != nil {
		return err
	}
	defer svcs.Publisher.Close() //nolint:errcheck

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
		httpSwagger.InstanceName("cart"),
	))
	cartApi.CartRoutes(r, svcs)

	log.Info("cart service starting", "addr", cfg.CartAddr, "env", cfg.Environment, "exchange", cfg.ExchangeName)
	return httpx.Serve(ctx, httpx.NewServer(cfg.CartAddr, r), 30*time.Second, log)
}
