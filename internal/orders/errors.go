package orders

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// LineError ties a placement failure to the cart line that caused it.
type LineError struct {
	ProductID string
	Quantity  int
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line for product %s (quantity %d): %v", e.ProductID, e.Quantity, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func lineErr(productID string, quantity int, err error) *LineError {
	return &LineError{ProductID: productID, Quantity: quantity, Err: err}
}
