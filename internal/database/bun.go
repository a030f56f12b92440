package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Driver names understood by Open
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewBunDB creates a new Bun DB instance from an existing sql.DB connection
func NewBunDB(sqlDB *sql.DB, driver string) *bun.DB {
	if driver == DriverSQLite {
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
	return bun.NewDB(sqlDB, pgdialect.New())
}

// Open opens and pings a connection pool for driver and wraps it with Bun
func Open(driver, dsn string, maxOpenConns int) (*bun.DB, error) {
	sqlDriver := "postgres"
	if driver == DriverSQLite {
		sqlDriver = "sqlite3"
	}

	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(5)
	}

	return NewBunDB(sqlDB, driver), nil
}
