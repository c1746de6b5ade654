// Package dbtest opens throwaway in-memory SQLite databases carrying the
// ledger schema for repository and service tests.
package dbtest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const ProductsTable = `
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  offer_price TEXT NOT NULL,
  image_url TEXT,
  in_stock BOOLEAN NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`

const OrdersTable = `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  shipping_address_ref TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_session_id TEXT,
  paid BOOLEAN NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  gateway_amount TEXT,
  currency TEXT NOT NULL DEFAULT 'usd',
  contact_email TEXT,
  paid_at DATETIME,
  payment_checked_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX ux_orders_payment_session_id ON orders (payment_session_id);`

const OrderLinesTable = `
CREATE TABLE order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  product_ref TEXT NOT NULL,
  price_source TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  snapshot_image TEXT,
  snapshot_category TEXT,
  created_at DATETIME
);`

const OutboxEventsTable = `
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

// LedgerSchema is every table the order core touches.
var LedgerSchema = []string{ProductsTable, OrdersTable, OrderLinesTable, OutboxEventsTable}

// Open returns a single-connection in-memory database with the given DDL applied.
// With no DDL the full ledger schema is created.
func Open(t testing.TB, ddl ...string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(ddl) == 0 {
		ddl = LedgerSchema
	}
	for _, stmt := range ddl {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply ddl: %v", err)
		}
	}
	return conn
}
