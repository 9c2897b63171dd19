package orders

import "context"

// Store is the persistence boundary of the order engine. One InTx call is one
// atomic unit of work: either every write inside fn commits, or none do.
type Store interface {
	// InTx runs fn inside a transaction with at least read-committed
	// isolation. A non-nil error from fn rolls the transaction back and is
	// returned as-is.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the transaction-scoped query surface. It is only valid inside
// the InTx callback that produced it.
type StoreTx interface {
	// FindOrderByNumber returns nil (no error) when no order has the number.
	FindOrderByNumber(ctx context.Context, number string) (*Order, error)

	// FindProductForUpdate locks the product row for the rest of the
	// transaction, so a concurrent read-check-decrement on the same product
	// serializes behind it. Returns nil when the product does not exist.
	FindProductForUpdate(ctx context.Context, id string) (*Product, error)

	// InsertOrder persists the order and all of its items.
	InsertOrder(ctx context.Context, o *Order, items []OrderItem) error

	// UpdateProductStock writes the new stock value for the product.
	UpdateProductStock(ctx context.Context, id string, stock int) error
}
