package orders

import (
	"errors"
	"fmt"
	"time"
)

// InvalidRequestError: request rejected before any store access.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid order request: " + e.Reason
}

// DuplicateOrderError: order number already taken. PlacedAt is the
// creation time of the existing order, for the caller-facing message.
type DuplicateOrderError struct {
	OrderNumber string
	PlacedAt    time.Time
}

func (e *DuplicateOrderError) Error() string {
	if e.PlacedAt.IsZero() {
		return fmt.Sprintf("order %s already exists", e.OrderNumber)
	}
	return fmt.Sprintf("order %s already placed at %s", e.OrderNumber, e.PlacedAt.Format(time.RFC3339))
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return "product not found: " + e.ProductID
}

type InsufficientStockError struct {
	ProductID string
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, available %d",
		e.ProductID, e.Required, e.Available)
}

// StorageError wraps a failure of the store itself (conflict, timeout,
// connectivity). The whole call rolled back, so a retry is safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// IsDomainErr reports whether err is one of the order failure kinds that
// should pass through the store layer untouched.
func IsDomainErr(err error) bool {
	var (
		inv  *InvalidRequestError
		dup  *DuplicateOrderError
		nf   *ProductNotFoundError
		insf *InsufficientStockError
	)
	return errors.As(err, &inv) || errors.As(err, &dup) || errors.As(err, &nf) || errors.As(err, &insf)
}
