package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		currency CHAR(3) NOT NULL,
		version INT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id),
		direction VARCHAR(6) NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
		amount BIGINT NOT NULL CHECK (amount > 0),
		balance_after BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference VARCHAR(128) NOT NULL UNIQUE,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_account_idx ON ledger_entries (account_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		business_name TEXT NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT false,
		verified_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS vendor_verifications (
		id BIGSERIAL PRIMARY KEY,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		status VARCHAR(16) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		name TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price >= 0),
		stock INT NOT NULL CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		total BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		delivery_address_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price BIGINT NOT NULL,
		fulfilled BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS riders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE'
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		rider_id BIGINT NOT NULL REFERENCES riders(id),
		pickup_address TEXT NOT NULL,
		dropoff_address TEXT NOT NULL,
		fare BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS apartments (
		id BIGSERIAL PRIMARY KEY,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		title TEXT NOT NULL,
		price_per_night BIGINT NOT NULL CHECK (price_per_night >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS apartment_bookings (
		id BIGSERIAL PRIMARY KEY,
		apartment_id BIGINT NOT NULL REFERENCES apartments(id),
		user_id BIGINT NOT NULL,
		check_in TIMESTAMPTZ NOT NULL,
		check_out TIMESTAMPTZ NOT NULL,
		nights INT NOT NULL,
		total_price BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (check_out > check_in)
	)`,
	`CREATE INDEX IF NOT EXISTS apartment_bookings_range_idx ON apartment_bookings (apartment_id, status, check_in, check_out)`,
	`CREATE TABLE IF NOT EXISTS menus (
		id BIGSERIAL PRIMARY KEY,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		name TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price >= 0),
		is_available BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS food_orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		total BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		delivery_address_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS food_order_items (
		id BIGSERIAL PRIMARY KEY,
		food_order_id BIGINT NOT NULL REFERENCES food_orders(id),
		menu_id BIGINT NOT NULL REFERENCES menus(id),
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id BIGSERIAL PRIMARY KEY,
		vendor_id BIGINT NOT NULL REFERENCES vendors(id),
		name TEXT NOT NULL,
		kind VARCHAR(16) NOT NULL DEFAULT 'GENERAL',
		price BIGINT NOT NULL CHECK (price >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS service_bookings (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		service_id BIGINT NOT NULL REFERENCES services(id),
		schedule_date TIMESTAMPTZ NOT NULL,
		amount BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS p2p_transfers (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL,
		receiver_id BIGINT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		client_reference VARCHAR(64) UNIQUE,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (sender_id <> receiver_id)
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_transitions (
		id BIGSERIAL PRIMARY KEY,
		vertical VARCHAR(32) NOT NULL,
		record_id BIGINT NOT NULL,
		from_status VARCHAR(16) NOT NULL,
		to_status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates every table the services touch.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
