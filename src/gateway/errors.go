package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the referenced order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrInvalidState is returned when an operation is not legal for the order's
// current lifecycle state, e.g. cancelling a filled order.
var ErrInvalidState = errors.New("order is in an invalid state for this operation")

// ErrSubmissionBlocked is returned when a submission guard (margin circuit
// breaker) refuses new leveraged orders.
var ErrSubmissionBlocked = errors.New("order submission currently blocked")

// ValidationError rejects an order before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a pre-trade validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
