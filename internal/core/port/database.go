package port

import (
	"context"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// Conn is one live connection to a target database.
type Conn interface {
	SchemaExplorer
	QueryExecutor
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Driver dials connections for one connection string.
type Driver interface {
	Dialect() domain.Dialect
	Connect(ctx context.Context) (Conn, error)
	// Validate accepts only a single read-only SELECT.
	Validate(query string) error
	// Close releases driver-wide resources such as a shared *sql.DB.
	Close() error
}

// DriverFactory builds a Driver from a connection string.
type DriverFactory func(connString string) (Driver, error)
