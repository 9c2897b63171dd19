package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore implements Store on top of Postgres. Row-level locking comes from
// SELECT ... FOR UPDATE inside FindProductForUpdate; the unique constraint on
// orders.order_number is the backstop for concurrent duplicate submissions.
type PGStore struct{ DB *pgxpool.Pool }

const pgUniqueViolation = "23505"

func (s *PGStore) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgStoreTx{tx: tx}); err != nil {
		return s.translate(ctx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return s.translate(ctx, err)
	}
	return nil
}

// translate maps raw storage failures onto the engine's error kinds. Domain
// errors pass through; a duplicate raised by the unique-constraint backstop
// gets the winning order's date filled in with a best-effort read outside
// the aborted transaction.
func (s *PGStore) translate(ctx context.Context, err error) error {
	var dup *DuplicateOrderError
	if errors.As(err, &dup) && dup.PlacedAt.IsZero() && dup.OrderNumber != "" {
		_ = s.DB.QueryRow(ctx, `SELECT created_at FROM orders WHERE order_number = $1`, dup.OrderNumber).
			Scan(&dup.PlacedAt)
		return dup
	}
	if IsDomainErr(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: "tx", Err: err}
}

type pgStoreTx struct{ tx pgx.Tx }

func (t *pgStoreTx) FindOrderByNumber(ctx context.Context, number string) (*Order, error) {
	var (
		o     Order
		total string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_number, customer_name, customer_email, total_amount::text, created_at
		FROM orders WHERE order_number = $1`, number).
		Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "find order", Err: err}
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, &StorageError{Op: "find order", Err: err}
	}
	return &o, nil
}

func (t *pgStoreTx) FindProductForUpdate(ctx context.Context, id string) (*Product, error) {
	var (
		p     Product
		price string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, sku, name, description, price::text, stock, created_at, updated_at
		FROM products WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "lock product", Err: err}
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, &StorageError{Op: "lock product", Err: err}
	}
	return &p, nil
}

func (t *pgStoreTx) InsertOrder(ctx context.Context, o *Order, items []OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_name, customer_email, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.OrderNumber, o.CustomerName, o.CustomerEmail, o.TotalAmount.StringFixed(2), o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation &&
			strings.Contains(pgErr.ConstraintName, "order_number") {
			// Lost the race to a concurrent insert; the duplicate check
			// above saw nothing. The constraint is the backstop.
			return &DuplicateOrderError{OrderNumber: o.OrderNumber}
		}
		return &StorageError{Op: "insert order", Err: err}
	}
	for _, it := range items {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price)
			VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Qty, it.UnitPrice.StringFixed(2))
		if err != nil {
			return &StorageError{Op: "insert order item", Err: err}
		}
	}
	return nil
}

func (t *pgStoreTx) UpdateProductStock(ctx context.Context, id string, stock int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return &StorageError{Op: "update stock", Err: err}
	}
	if ct.RowsAffected() != 1 {
		return &ProductNotFoundError{ProductID: id}
	}
	return nil
}

// GetOrder loads a committed order with its items and resolved products.
// Plain read, no transaction needed.
func (s *PGStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	var (
		o     Order
		total string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_number, customer_name, customer_email, total_amount::text, created_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &total, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "get order", Err: err}
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, &StorageError{Op: "get order", Err: err}
	}

	rows, err := s.DB.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.qty, i.unit_price::text,
		       p.id, p.sku, p.name, p.description, p.price::text, p.stock, p.created_at, p.updated_at
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, id)
	if err != nil {
		return nil, &StorageError{Op: "get order items", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it          OrderItem
			p           Product
			price, unit string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &unit,
			&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, &StorageError{Op: "get order items", Err: err}
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, &StorageError{Op: "get order items", Err: err}
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, &StorageError{Op: "get order items", Err: err}
		}
		it.Product = &p
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "get order items", Err: err}
	}
	return &o, nil
}
