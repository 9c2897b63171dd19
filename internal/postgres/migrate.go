package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            uuid PRIMARY KEY,
		name          text NOT NULL,
		email         text NOT NULL UNIQUE,
		password_hash text NOT NULL,
		role          text NOT NULL DEFAULT 'customer',
		created_at    timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          uuid PRIMARY KEY,
		sku         text NOT NULL UNIQUE,
		name        text NOT NULL,
		description text NOT NULL DEFAULT '',
		price       numeric(12,2) NOT NULL CHECK (price >= 0),
		stock       integer NOT NULL CHECK (stock >= 0),
		created_at  timestamptz NOT NULL DEFAULT now(),
		updated_at  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id             uuid PRIMARY KEY,
		order_number   text NOT NULL UNIQUE,
		customer_name  text NOT NULL,
		customer_email text NOT NULL,
		total_amount   numeric(12,2) NOT NULL CHECK (total_amount >= 0),
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         bigserial PRIMARY KEY,
		order_id   uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id uuid NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		qty        integer NOT NULL CHECK (qty > 0),
		unit_price numeric(12,2) NOT NULL CHECK (unit_price >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
}

// Migrate applies the schema at startup. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
