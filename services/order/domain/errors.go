package domain

import "errors"

// Sentinel errors for the order domain. Use errors.Is() to check these.
var (
	// ErrOrderNotFound indicates no order has been materialized for the id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrMalformedPayload indicates a delivery that can never be processed.
	// Such messages are settled without requeue.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrStoreUnavailable indicates the order store could not be reached.
	// Transient; the delivery is redelivered.
	ErrStoreUnavailable = errors.New("order store unavailable")
)
