package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fleethire/internal/domain"
	"fleethire/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	// ErrConcurrentModification is returned when a versioned update finds a newer row.
	ErrConcurrentModification = domain.ErrConcurrentModification
	ErrNotFound               = domain.ErrNotFound
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu              sync.RWMutex
	categoriesCache map[int64]*models.VehicleCategory
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// immediate transactions take the write lock up front so two commits cannot interleave their checks
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := NewFromConn(sqlDB, logger)

	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// NewFromConn wraps an already opened connection without touching the schema.
func NewFromConn(conn *sql.DB, logger *zerolog.Logger) *DB {
	return &DB{
		DB:              conn,
		logger:          logger,
		categoriesCache: make(map[int64]*models.VehicleCategory),
	}
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS branches (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS vehicle_categories (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            seats INTEGER NOT NULL,
            base_fee INTEGER NOT NULL DEFAULT 0,
            price_per_km INTEGER NOT NULL DEFAULT 0,
            same_day_fixed_price INTEGER NOT NULL DEFAULT 0,
            highway_fee INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS vehicles (
            id INTEGER PRIMARY KEY,
            branch_id INTEGER NOT NULL,
            category_id INTEGER NOT NULL REFERENCES vehicle_categories(id),
            license_plate TEXT NOT NULL UNIQUE,
            status TEXT NOT NULL DEFAULT 'AVAILABLE'
        )`,
		`CREATE TABLE IF NOT EXISTS drivers (
            id INTEGER PRIMARY KEY,
            branch_id INTEGER NOT NULL,
            full_name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_name TEXT NOT NULL DEFAULT '',
            customer_phone TEXT NOT NULL DEFAULT '',
            customer_email TEXT NOT NULL DEFAULT '',
            branch_id INTEGER NOT NULL,
            hire_type_id INTEGER NOT NULL,
            distance_km REAL NOT NULL DEFAULT 0,
            use_highway BOOLEAN NOT NULL DEFAULT 0,
            is_holiday BOOLEAN NOT NULL DEFAULT 0,
            is_weekend BOOLEAN NOT NULL DEFAULT 0,
            estimated_cost INTEGER NOT NULL DEFAULT 0,
            discount_percent REAL NOT NULL DEFAULT 0,
            discount_amount INTEGER NOT NULL DEFAULT 0,
            total_cost INTEGER NOT NULL DEFAULT 0,
            price_overridden BOOLEAN NOT NULL DEFAULT 0,
            deposit_amount INTEGER NOT NULL DEFAULT 0,
            paid_amount INTEGER NOT NULL DEFAULT 0,
            note TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            last_assigned_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS trips (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            start_location TEXT NOT NULL DEFAULT '',
            end_location TEXT NOT NULL DEFAULT '',
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            distance_km REAL NOT NULL DEFAULT 0,
            driver_id INTEGER,
            vehicle_id INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS booking_vehicles (
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            category_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL,
            PRIMARY KEY (booking_id, category_id)
        )`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL DEFAULT 0,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_vehicles_branch_category ON vehicles(branch_id, category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_branch_status ON bookings(branch_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_phone ON bookings(customer_phone)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_booking ON trips(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_vehicle_time ON trips(vehicle_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_status ON event_outbox(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func capacityStatuses() []interface{} {
	var out []interface{}
	for _, s := range models.AllStatuses {
		if s.HoldsCapacity() {
			out = append(out, string(s))
		}
	}
	return out
}
