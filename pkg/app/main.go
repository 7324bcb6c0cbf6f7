package app

import (
	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/database"
	"github.com/ghuser/orderflow/pkg/logger"
	"github.com/ghuser/orderflow/pkg/messaging"
)

// Application holds shared infrastructure dependencies for a service.
// Pass it to the service's route and consumer constructors during startup.
//
// Logging: app.Logger is backed by a trace-aware handler. Use the context
// methods and trace_id, span_id and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "order committed", "order_id", id)
//	app.Logger.ErrorContext(ctx, "commit failed", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
//
// Db and Redis are nil unless a configured backend needs them.
type Application struct {
	Config *config.Config
	Logger logger.Logger
	Broker *messaging.Connection
	Db     *database.Database
	Redis  *cache.RedisClient
}
