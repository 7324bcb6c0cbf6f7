package domain

import "errors"

// Sentinel errors for the cart domain. Use errors.Is() to check these.
var (
	// ErrOrderAlreadyExists indicates the orderId was already published.
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrInvalidOrder indicates the create request violates domain constraints.
	ErrInvalidOrder = errors.New("invalid order")
)
