// Package database opens the MySQL connection pool backing the
// inventory, reservation, order and saga tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Params carries the connection and pool settings for Open.  Pool
// sizing lives in config so operators can tune it per deployment
// instead of recompiling.
type Params struct {
	User            string
	Pass            string // empty allowed
	Host            string
	Port            string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to MySQL, applies the pool limits and verifies the
// connection with a bounded ping.
func Open(p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn(p))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)
	db.SetConnMaxLifetime(p.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// dsn formats the MySQL connection string.  parseTime maps DATETIME
// columns to time.Time and loc=UTC keeps every timestamp in UTC, which
// the reservation expiry comparisons rely on.
func dsn(p Params) string {
	auth := p.User
	if p.Pass != "" {
		auth = fmt.Sprintf("%s:%s", p.User, p.Pass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, p.Host, p.Port, p.Name)
}
