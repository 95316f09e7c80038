// Package database opens the match-results store and keeps its schema
// current with embedded goose migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrations embed.FS

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	// DB returns the underlying handle.
	DB() *sql.DB

	// Dialect is "postgres" or "sqlite3".
	Dialect() string

	// Close terminates the database connection.
	Close() error
}

type service struct {
	db      *sql.DB
	dialect string
}

// New opens driver ("pgx", "postgres" or "sqlite3") at dsn and applies
// pending migrations.
func New(ctx context.Context, driver, dsn string) (Service, error) {
	var (
		sqlDriver string
		dialect   goose.Dialect
		dir       string
	)
	switch driver {
	case "pgx", "postgres":
		sqlDriver, dialect, dir = "pgx", goose.DialectPostgres, "migrations/postgres"
	case "sqlite3", "sqlite":
		sqlDriver, dialect, dir = "sqlite3", goose.DialectSQLite3, "migrations/sqlite3"
	default:
		return nil, fmt.Errorf("DB_DRIVER_UNSUPPORTED: %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", sqlDriver, err)
	}
	if sqlDriver == "sqlite3" {
		// one writer avoids SQLITE_BUSY between the stats sink and admin reads
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", sqlDriver, err)
	}

	if err := migrate(ctx, db, dialect, dir); err != nil {
		db.Close()
		return nil, err
	}

	name := "postgres"
	if sqlDriver == "sqlite3" {
		name = "sqlite3"
	}
	return &service{db: db, dialect: name}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Dialect() string {
	return s.dialect
}

// Health checks the health of the database connection by pinging the database.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)

	return stats
}

func (s *service) Close() error {
	return s.db.Close()
}
