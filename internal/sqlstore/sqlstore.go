// Package sqlstore keeps storage items in a SQL table through bun, on
// SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	defaultTimeout = 5 * time.Second
)

var ErrUnsupportedDriver = errors.New("unsupported sql driver")

type item struct {
	bun.BaseModel `bun:"table:storage_items"`

	Origin    string    `bun:"origin,pk"`
	Key       string    `bun:"item_key,pk"`
	Value     string    `bun:"item_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Store is a Storage backed by the storage_items table.
type Store struct {
	db     *bun.DB
	origin string
}

var _ sdk.Storage = (*Store)(nil)

// Open connects with driver ("sqlite3" or "pgx"), applies migrations and
// returns a Store scoped to origin.
func Open(ctx context.Context, driver, dsn, origin string) (*Store, error) {
	dialect, err := bunDialect(driver)
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers, and an in-memory database exists per connection
		sqldb.SetMaxOpenConns(1)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := Migrate(ctx, sqldb, driver); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	return New(bun.NewDB(sqldb, dialect), origin), nil
}

// New returns a Store on an already migrated database.
func New(db *bun.DB, origin string) *Store {
	return &Store{db: db, origin: origin}
}

func bunDialect(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultTimeout)
}

func (s *Store) GetItem(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var row item
	err := s.db.NewSelect().
		Model(&row).
		Where("origin = ?", s.origin).
		Where("item_key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sdk.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *Store) SetItem(key, value string) error {
	if !sdk.ValidKey(key) {
		return sdk.ErrInvalidKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	row := &item{
		Origin:    s.origin,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (origin, item_key) DO UPDATE").
		Set("item_value = EXCLUDED.item_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) RemoveItem(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.db.NewDelete().
		Model((*item)(nil)).
		Where("origin = ?", s.origin).
		Where("item_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys := []string{}
	err := s.db.NewSelect().
		Model((*item)(nil)).
		Column("item_key").
		Where("origin = ?", s.origin).
		OrderExpr("item_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
