package repositories

import "context"

// OrderRegistry records which orderIds have been announced so a second
// create for the same id is refused. The domain layer owns this interface;
// infrastructure implements it.
type OrderRegistry interface {
	// Reserve claims orderID. It reports false when the id is already taken.
	Reserve(ctx context.Context, orderID string) (bool, error)

	// Release frees a reservation whose publish failed.
	Release(ctx context.Context, orderID string) error
}
