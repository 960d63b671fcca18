package bunstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to Postgres through pgx or to SQLite through modernc. SQLite
// is limited to a single connection: it has one writer at a time and an
// in-memory database lives only as long as its connection.
func Open(driver, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	var (
		sqlDB *sql.DB
		err   error
		d     = driver
	)
	switch driver {
	case "", DriverPostgres:
		d = DriverPostgres
		sqlDB, err = sql.Open("pgx", databaseURL)
	case DriverSQLite:
		sqlDB, err = sql.Open("sqlite", databaseURL)
	default:
		return nil, fmt.Errorf("bunstore: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if d == DriverSQLite {
		pool = PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if d == DriverSQLite {
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

func isPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}
