// Package registry implements repositories.OrderRegistry.
package registry

import (
	"context"
	"sync"

	"github.com/ghuser/orderflow/services/cart/domain/repositories"
)

// MemoryRegistry keeps reservations for the life of the process.
type MemoryRegistry struct {
	ids sync.Map
}

var _ repositories.OrderRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

func (r *MemoryRegistry) Reserve(_ context.Context, orderID string) (bool, error) {
	_, loaded := r.ids.LoadOrStore(orderID, struct{}{})
	return !loaded, nil
}

func (r *MemoryRegistry) Release(_ context.Context, orderID string) error {
	r.ids.Delete(orderID)
	return nil
}
