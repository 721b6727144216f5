package engine

import (
	"errors"
	"fmt"
)

// ErrConcurrencyRejected means the guard was already held for the symbol.
// Not a fault: the duplicate attempt is simply a no-op.
var ErrConcurrencyRejected = errors.New("operation already in flight")

// ErrExposureRejected means the open would push aggregate margin past the
// configured cap.
var ErrExposureRejected = errors.New("exposure cap exceeded")

// ValidationError is a locally rejected input: bad, NaN or out-of-range
// values must never reach order submission or P&L arithmetic.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
