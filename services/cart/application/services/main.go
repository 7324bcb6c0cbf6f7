package services

import (
	"fmt"

	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/messaging"
	"github.com/ghuser/orderflow/services/cart/domain/repositories"
	domainsvcs "github.com/ghuser/orderflow/services/cart/domain/services"
	"github.com/ghuser/orderflow/services/cart/infrastructure/publisher"
	"github.com/ghuser/orderflow/services/cart/infrastructure/registry"
)

// Services is the application-layer service container for the cart
// bounded context. It wires domain services with their infrastructure
// implementations.
type Services struct {
	Cart      *CartService
	Publisher *messaging.Publisher
}

// New wires all cart application services from the Application container.
func New(a *app.Application) (*Services, error) {
	var reg repositories.OrderRegistry
	switch a.Config.OrderRegistry {
	case config.BackendRedis:
		if a.Redis == nil {
			return nil, fmt.Errorf("order registry %q requires a redis client", a.Config.OrderRegistry)
		}
		reg = registry.NewRedisRegistry(a.Redis, 0)
	default:
		reg = registry.NewMemoryRegistry()
	}

	pub := messaging.NewPublisher(a.Broker, a.Config.ExchangeName, a.Config.PublisherConfirms, a.Logger)
	return &Services{
		Cart:      NewCartService(reg, domainsvcs.NewRandomGenerator(), publisher.NewOrderPublisher(pub), a.Logger),
		Publisher: pub,
	}, nil
}
