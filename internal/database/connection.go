package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Connection owns a pool and one connection pinned out of it. Session state
// such as the active schema is set on Conn, so every statement of a transfer
// goes through it.
type Connection struct {
	DB      *sql.DB
	Conn    *sql.Conn
	Config  *config.Config
	dialect dialect.Dialect
}

// Provider resolves a datasource to a live connection. The caller owns the
// returned connection and must close it.
type Provider func(ctx context.Context) (*Connection, error)

// FromConfig returns a provider that opens a new connection for cfg on
// every call.
func FromConfig(cfg *config.Config) Provider {
	return func(ctx context.Context) (*Connection, error) {
		return NewConnection(ctx, cfg)
	}
}

func NewConnection(ctx context.Context, cfg *config.Config) (*Connection, error) {
	driverName := cfg.DriverName()
	if driverName == "" {
		return nil, fmt.Errorf("unsupported database type for SQL connection: %s", cfg.Database.Type)
	}

	d, err := dialect.ForName(cfg.Database.Type)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	return &Connection{
		DB:      db,
		Conn:    conn,
		Config:  cfg,
		dialect: d,
	}, nil
}

// Wrap pins a connection out of an existing pool. Closing the result closes db.
func Wrap(ctx context.Context, db *sql.DB, cfg *config.Config) (*Connection, error) {
	d, err := dialect.ForName(cfg.Database.Type)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Connection{DB: db, Conn: conn, Config: cfg, dialect: d}, nil
}

func (c *Connection) Dialect() dialect.Dialect {
	return c.dialect
}

func (c *Connection) Close() error {
	var errs []error
	if c.Conn != nil {
		errs = append(errs, c.Conn.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

func (c *Connection) GetDatabaseName() string {
	return c.Config.Database.Database
}

// Location tags a table with where it was read from.
func (c *Connection) Location(schema, table string) string {
	if schema == "" {
		return c.Config.Describe() + "#" + table
	}
	return fmt.Sprintf("%s#%s.%s", c.Config.Describe(), schema, table)
}
