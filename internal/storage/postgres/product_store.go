// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotFound is returned when no row matches a product code.
var ErrNotFound = errors.New("product not found")

// ProductStoreConfig controls the Postgres connection pool.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProductStore writes extracted catalog rows into Postgres.
type ProductStore struct {
	pool  pool
	table string
}

// NewProductStore creates a Postgres-backed ProductStore using the provided config.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "onch_products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pgPool, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(p pool, table string) (*ProductStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "onch_products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProductStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	s.pool.Close()
}

// SaveRecords upserts one batch of product records keyed by product_code.
func (s *ProductStore) SaveRecords(ctx context.Context, batch []onch.ProductRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (product_code, consumer_price, seller_price, shipping_cost, items, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (product_code) DO UPDATE SET
			consumer_price = EXCLUDED.consumer_price,
			seller_price = EXCLUDED.seller_price,
			shipping_cost = EXCLUDED.shipping_cost,
			items = EXCLUDED.items,
			updated_at = now()`, s.table)

	for _, rec := range batch {
		items, err := json.Marshal(rec.Items)
		if err != nil {
			return fmt.Errorf("marshal items for %s: %w", rec.ProductCode, err)
		}
		if _, err := s.pool.Exec(ctx, query,
			rec.ProductCode, rec.ConsumerPrice, rec.SellerPrice, rec.ShippingCost, items,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ProductCode, err)
		}
	}
	return nil
}

// ClearAll removes every catalog row.
func (s *ProductStore) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	return nil
}

// GetByCode fetches one product record.
func (s *ProductStore) GetByCode(ctx context.Context, code string) (onch.ProductRecord, error) {
	query := fmt.Sprintf(
		"SELECT product_code, consumer_price, seller_price, shipping_cost, items FROM %s WHERE product_code = $1",
		s.table,
	)
	var rec onch.ProductRecord
	var items []byte
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&rec.ProductCode, &rec.ConsumerPrice, &rec.SellerPrice, &rec.ShippingCost, &items,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return onch.ProductRecord{}, ErrNotFound
	}
	if err != nil {
		return onch.ProductRecord{}, fmt.Errorf("get product %s: %w", code, err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return onch.ProductRecord{}, fmt.Errorf("unmarshal items for %s: %w", code, err)
		}
	}
	return rec, nil
}

// LastRun returns the stored last-run timestamp for a task, zero when unset.
func (s *ProductStore) LastRun(ctx context.Context, task string) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT last_run FROM onch_crawl_state WHERE task = $1", task,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last run for %s: %w", task, err)
	}
	return at, nil
}

// SetLastRun stores the last-run timestamp for a task.
func (s *ProductStore) SetLastRun(ctx context.Context, task string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO onch_crawl_state (task, last_run)
		VALUES ($1, $2)
		ON CONFLICT (task) DO UPDATE SET last_run = EXCLUDED.last_run`,
		task, at,
	)
	if err != nil {
		return fmt.Errorf("set last run for %s: %w", task, err)
	}
	return nil
}
