package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/events"
)

// ShippingPolicy prices shipping for an order. Quote must be a pure
// function of its inputs: redelivered events are priced identically.
type ShippingPolicy interface {
	Quote(items []events.OrderItem, numberOfItems int) decimal.Decimal
}

// DefaultShippingRate is the share of the order total charged for shipping.
var DefaultShippingRate = decimal.RequireFromString("0.02")

// PercentPolicy charges Rate × order total, rounded half to even to cents.
type PercentPolicy struct {
	Rate decimal.Decimal
}

// NewPercentPolicy returns a PercentPolicy. The rate must be in [0, 1].
func NewPercentPolicy(rate decimal.Decimal) (*PercentPolicy, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("shipping rate must be between 0 and 1 (got %s)", rate)
	}
	return &PercentPolicy{Rate: rate}, nil
}

func (p *PercentPolicy) Quote(items []events.OrderItem, _ int) decimal.Decimal {
	return events.Total(items).Mul(p.Rate).RoundBank(2)
}

// TieredPolicy charges Base plus PerUnit for every unit shipped, capped at
// Cap. A zero Cap means no cap.
type TieredPolicy struct {
	Base    decimal.Decimal
	PerUnit decimal.Decimal
	Cap     decimal.Decimal
}

// NewTieredPolicy returns a TieredPolicy. All amounts must be non-negative
// and a non-zero cap must not be below the base fee.
func NewTieredPolicy(base, perUnit, limit decimal.Decimal) (*TieredPolicy, error) {
	switch {
	case base.IsNegative(), perUnit.IsNegative(), limit.IsNegative():
		return nil, fmt.Errorf("shipping amounts must not be negative")
	case !limit.IsZero() && limit.LessThan(base):
		return nil, fmt.Errorf("shipping cap %s is below the base fee %s", limit, base)
	}
	return &TieredPolicy{Base: base, PerUnit: perUnit, Cap: limit}, nil
}

func (p *TieredPolicy) Quote(items []events.OrderItem, _ int) decimal.Decimal {
	units := 0
	for _, it := range items {
		units += it.Quantity
	}
	cost := p.Base.Add(p.PerUnit.Mul(decimal.NewFromInt(int64(units))))
	if !p.Cap.IsZero() && cost.GreaterThan(p.Cap) {
		cost = p.Cap
	}
	return cost.RoundBank(2)
}
