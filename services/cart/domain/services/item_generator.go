// Package services contains stateless domain services for the cart bounded
// context.
package services

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ghuser/orderflow/pkg/events"
	"github.com/ghuser/orderflow/services/cart/domain/models"
)

// ItemGenerator supplies the synthetic content of a new order.
type ItemGenerator interface {
	CustomerID() string
	Items(n int) []models.Item
	Currency() string
}

const (
	idAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	customerIDPrefix = "CUST_"
	customerIDLength = 8
	itemIDLength     = 6

	minQuantity  = 1
	maxQuantity  = 10
	minPriceCent = 500
	maxPriceCent = 10000
)

// RandomGenerator produces customer ids "CUST_" + 8 characters, items with
// 6-character ids, quantities 1–10 and prices 5.00–100.00, and a random
// currency. Safe for concurrent use.
type RandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomGenerator returns a generator with a random seed.
func NewRandomGenerator() *RandomGenerator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64())
}

// NewSeededGenerator returns a deterministic generator.
func NewSeededGenerator(seed1, seed2 uint64) *RandomGenerator {
	return &RandomGenerator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (g *RandomGenerator) CustomerID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return customerIDPrefix + g.randomString(customerIDLength)
}

func (g *RandomGenerator) Items(n int) []models.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	items := make([]models.Item, n)
	for i := range items {
		items[i] = models.Item{
			ID:       g.randomString(itemIDLength),
			Quantity: minQuantity + g.rng.IntN(maxQuantity-minQuantity+1),
			Price:    decimal.New(int64(minPriceCent+g.rng.IntN(maxPriceCent-minPriceCent+1)), -2),
		}
	}
	return items
}

func (g *RandomGenerator) Currency() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return events.Currencies[g.rng.IntN(len(events.Currencies))]
}

// randomString must be called with g.mu held.
func (g *RandomGenerator) randomString(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(idAlphabet[g.rng.IntN(len(idAlphabet))])
	}
	return b.String()
}
