// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store opens the pooled PostgreSQL handle values are persisted
// through and runs the statements the schema and statement packages build.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v4/stdlib"
	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"

	defaultMaxOpenConns    = 16
	defaultMaxIdleConns    = 4
	defaultConnMaxLifetime = 30 * time.Minute
)

var (
	// ErrStore wraps every failure reported by the backing store.
	ErrStore = errors.New("store error")

	errUnknownDriver = errors.New("unknown database driver")
	errNoURL         = errors.New("no database url")
)

// Config describes the connection pool.
type Config struct {
	Driver          string        `json:"driver"`
	URL             string        `json:"url"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// DefaultConfig returns a lib/pq pool for [url].
func DefaultConfig(url string) Config {
	return Config{
		Driver:          DriverPQ,
		URL:             url,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
	}
}

func (c Config) validate() error {
	switch {
	case c.Driver != DriverPQ && c.Driver != DriverPGX:
		return fmt.Errorf("%w: %q", errUnknownDriver, c.Driver)
	case c.URL == "":
		return errNoURL
	default:
		return nil
	}
}

// Open connects to the database described by [cfg] and checks it is
// reachable.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't open %s database: %s", ErrStore, cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: couldn't reach database: %s", ErrStore, err)
	}
	return db, nil
}

// ApplySchema runs [stmts] in order inside one transaction.
func ApplySchema(ctx context.Context, db *sqlx.DB, stmts []string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: couldn't begin schema transaction: %s", ErrStore, err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: couldn't apply %q: %s", ErrStore, stmt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: couldn't commit schema: %s", ErrStore, err)
	}
	return nil
}

// Exec runs a statement that returns no rows.
func Exec(ctx context.Context, db sqlx.ExecerContext, stmt string) error {
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: %s", ErrStore, err)
	}
	return nil
}

// Resolution is the outcome of a resolving save batch.
type Resolution struct {
	// ID is the row the saved value resolved to. It is invalid when the
	// value has no row of its own.
	ID       sql.NullInt64 `db:"id"`
	Inserted int64         `db:"inserted"`
}

// Resolve runs a resolving save batch and reads its single result row.
func Resolve(ctx context.Context, db sqlx.QueryerContext, stmt string) (Resolution, error) {
	var r Resolution
	if err := db.QueryRowxContext(ctx, stmt).StructScan(&r); err != nil {
		return Resolution{}, fmt.Errorf("%w: %s", ErrStore, err)
	}
	return r, nil
}
