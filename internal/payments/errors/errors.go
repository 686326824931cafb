// Package errors defines sentinel errors for the payments domain.
package errors

import "errors"

var (
	// ErrNotFound is returned when a payment record cannot be found.
	ErrNotFound = errors.New("payment not found")

	// ErrInvalidID is returned when a payment ID is not a valid ObjectID.
	ErrInvalidID = errors.New("invalid payment ID format")

	// ErrNotRefundable is returned when a refund is requested for a payment
	// that was never captured.
	ErrNotRefundable = errors.New("payment is not in a refundable state")

	// ErrMissingTransaction is returned when a refund is requested but the
	// payment record carries no gateway transaction reference.
	ErrMissingTransaction = errors.New("payment has no gateway transaction reference")
)
