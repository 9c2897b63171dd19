package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CatalogRepo covers plain product CRUD. Single-row operations only; the
// order engine is the sole writer of stock once orders start flowing.
type CatalogRepo struct{ DB *pgxpool.Pool }

type ProductInput struct {
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// ProductUpdate: nil field = leave unchanged.
type ProductUpdate struct {
	Name        *string          `json:"name"`
	SKU         *string          `json:"sku"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

var ErrProductExists = errors.New("product already exists")

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &InvalidRequestError{Reason: "name is required"}
	}
	if strings.TrimSpace(in.SKU) == "" {
		return &InvalidRequestError{Reason: "sku is required"}
	}
	if in.Price.IsNegative() {
		return &InvalidRequestError{Reason: "price must not be negative"}
	}
	if in.Stock < 0 {
		return &InvalidRequestError{Reason: "stock must not be negative"}
	}
	return nil
}

func (r *CatalogRepo) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var existingID string
	err := r.DB.QueryRow(ctx, `SELECT id FROM products WHERE sku = $1`, in.SKU).Scan(&existingID)
	if err == nil {
		return nil, fmt.Errorf("%w: sku %s is taken by product %s", ErrProductExists, in.SKU, existingID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, &StorageError{Op: "check sku", Err: err}
	}

	id := uuid.NewString()
	var p Product
	var price string
	err = r.DB.QueryRow(ctx, `
		INSERT INTO products(id, sku, name, description, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sku, name, description, price::text, stock, created_at, updated_at`,
		id, in.SKU, in.Name, in.Description, in.Price.StringFixed(2), in.Stock).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("%w: sku %s", ErrProductExists, in.SKU)
		}
		return nil, &StorageError{Op: "insert product", Err: err}
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, &StorageError{Op: "insert product", Err: err}
	}
	return &p, nil
}

func (r *CatalogRepo) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	var price string
	err := r.DB.QueryRow(ctx, `
		SELECT id, sku, name, description, price::text, stock, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, &StorageError{Op: "get product", Err: err}
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, &StorageError{Op: "get product", Err: err}
	}
	return &p, nil
}

func (r *CatalogRepo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, description, price::text, stock, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, &StorageError{Op: "list products", Err: err}
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var price string
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, &StorageError{Op: "list products", Err: err}
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, &StorageError{Op: "list products", Err: err}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list products", Err: err}
	}
	return out, nil
}

func (up ProductUpdate) validate() error {
	if up.Name != nil && strings.TrimSpace(*up.Name) == "" {
		return &InvalidRequestError{Reason: "name must not be empty"}
	}
	if up.SKU != nil && strings.TrimSpace(*up.SKU) == "" {
		return &InvalidRequestError{Reason: "sku must not be empty"}
	}
	if up.Price != nil && up.Price.IsNegative() {
		return &InvalidRequestError{Reason: "price must not be negative"}
	}
	if up.Stock != nil && *up.Stock < 0 {
		return &InvalidRequestError{Reason: "stock must not be negative"}
	}
	return nil
}

// UpdateProduct writes only the supplied columns, in one statement. A patch
// that does not name stock must never write stock: the order engine owns
// that column once orders flow, and a read-merge-write here would resurrect
// inventory a concurrent order already consumed.
func (r *CatalogRepo) UpdateProduct(ctx context.Context, id string, up ProductUpdate) (*Product, error) {
	if err := up.validate(); err != nil {
		return nil, err
	}

	var priceArg *string
	if up.Price != nil {
		s := up.Price.StringFixed(2)
		priceArg = &s
	}

	var p Product
	var price string
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET
			sku         = COALESCE($2, sku),
			name        = COALESCE($3, name),
			description = COALESCE($4, description),
			price       = COALESCE($5, price),
			stock       = COALESCE($6, stock),
			updated_at  = now()
		WHERE id = $1
		RETURNING id, sku, name, description, price::text, stock, created_at, updated_at`,
		id, up.SKU, up.Name, up.Description, priceArg, up.Stock).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && up.SKU != nil {
			return nil, fmt.Errorf("%w: sku %s", ErrProductExists, *up.SKU)
		}
		return nil, &StorageError{Op: "update product", Err: err}
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, &StorageError{Op: "update product", Err: err}
	}
	return &p, nil
}

func (r *CatalogRepo) DeleteProduct(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		// order_items FK is ON DELETE RESTRICT: ordered products stay.
		return &StorageError{Op: "delete product", Err: err}
	}
	if ct.RowsAffected() == 0 {
		return &ProductNotFoundError{ProductID: id}
	}
	return nil
}
