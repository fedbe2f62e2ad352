package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // PostgreSQL driver
)

// Postgres error codes the workflow reacts to
const (
	pqUniqueViolation   = "23505"
	pqLockNotAvailable  = "55P03"
	pqSerializationFail = "40001"
	pqDeadlockDetected  = "40P01"
)

// ErrLockNotAvailable is returned when a row lock could not be taken without waiting
var ErrLockNotAvailable = errors.New("row is locked by another transaction")

// DB interface defines the database operations the HTTP layer needs
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB wraps a sqlx connection pool
type PostgresDB struct {
	*sqlx.DB
}

// NewConnection creates a new database connection
func NewConnection(cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connection poolers (pgbouncer, Supavisor) break on prepared statement reuse
	connectionURL := cfg.URL
	if !strings.Contains(connectionURL, "binary_parameters") {
		separator := "?"
		if strings.Contains(connectionURL, "?") {
			separator = "&"
		}
		connectionURL = connectionURL + separator + "binary_parameters=yes"
	}

	db, err := sqlx.Connect("postgres", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

// IsLockContention reports whether err means another transaction holds the rows.
// Contention is transient and worth retrying.
func IsLockContention(err error) bool {
	if errors.Is(err, ErrLockNotAvailable) {
		return true
	}
	switch pqCode(err) {
	case pqLockNotAvailable, pqSerializationFail, pqDeadlockDetected:
		return true
	}
	return false
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
