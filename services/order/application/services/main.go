package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/app"
	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/services/order/domain/repositories"
	domainsvcs "github.com/ghuser/orderflow/services/order/domain/services"
	"github.com/ghuser/orderflow/services/order/infrastructure/persistence/memory"
	"github.com/ghuser/orderflow/services/order/infrastructure/persistence/postgres"
)

// Services is the application-layer service container for the order
// bounded context. It wires domain services with their infrastructure
// implementations.
type Services struct {
	Order *OrderService
}

// New wires all order application services from the Application container.
func New(a *app.Application) (*Services, error) {
	var store repositories.OrderStore
	switch a.Config.OrderStore {
	case config.BackendPostgres:
		if a.Db == nil {
			return nil, fmt.Errorf("order store %q requires a database", a.Config.OrderStore)
		}
		store = postgres.NewOrderStore(a.Db)
	default:
		store = memory.NewOrderStore()
	}

	policy, err := NewShippingPolicy(a.Config)
	if err != nil {
		return nil, err
	}

	var readCache OrderReadCache
	if a.Config.OrderCache {
		if a.Redis == nil {
			return nil, fmt.Errorf("order cache requires a redis client")
		}
		readCache = cache.NewOrderCache(a.Redis)
	}

	return &Services{
		Order: NewOrderService(store, policy, readCache, a.Logger),
	}, nil
}

// NewShippingPolicy builds the policy named by SHIPPING_POLICY from its
// configured amounts.
func NewShippingPolicy(cfg *config.Config) (domainsvcs.ShippingPolicy, error) {
	switch cfg.ShippingPolicy {
	case config.ShippingTiered:
		base, err := parseAmount("SHIPPING_BASE_FEE", cfg.ShippingBase)
		if err != nil {
			return nil, err
		}
		perUnit, err := parseAmount("SHIPPING_PER_UNIT", cfg.ShippingPerUnit)
		if err != nil {
			return nil, err
		}
		limit, err := parseAmount("SHIPPING_CAP", cfg.ShippingCap)
		if err != nil {
			return nil, err
		}
		p, err := domainsvcs.NewTieredPolicy(base, perUnit, limit)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ShippingPercent, "":
		rate := domainsvcs.DefaultShippingRate
		if cfg.ShippingRate != "" {
			var err error
			if rate, err = parseAmount("SHIPPING_RATE", cfg.ShippingRate); err != nil {
				return nil, err
			}
		}
		p, err := domainsvcs.NewPercentPolicy(rate)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown shipping policy %q", cfg.ShippingPolicy)
	}
}

func parseAmount(name, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}
