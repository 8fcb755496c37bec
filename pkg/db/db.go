package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const defaultSQLiteDSN = "file:subledger.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Connect opens and pings a database. driver is "postgres" (lib/pq), "pgx"
// (jackc/pgx) or "sqlite" (modernc).
func Connect(ctx context.Context, driver, url string) (*sql.DB, error) {
	switch driver {
	case "postgres", "pgx":
		if url == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for driver %q", driver)
		}
	case "sqlite":
		if url == "" {
			url = defaultSQLiteDSN
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
