// Package database picks the driver adapter for a connection string.
package database

import (
	"github.com/guillermoBallester/hrquery/internal/adapter/mysql"
	"github.com/guillermoBallester/hrquery/internal/adapter/postgres"
	"github.com/guillermoBallester/hrquery/internal/adapter/sqlite"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

type Options struct {
	// PostgresSchemas limits PostgreSQL discovery; empty means current_schema().
	PostgresSchemas []string
}

// NewFactory returns a port.DriverFactory dispatching on the URL scheme.
func NewFactory(opts Options) port.DriverFactory {
	return func(connString string) (port.Driver, error) {
		dialect, err := domain.DialectOf(connString)
		if err != nil {
			return nil, err
		}
		switch dialect {
		case domain.DialectMySQL:
			return mysql.NewDriver(connString)
		case domain.DialectSQLite:
			return sqlite.NewDriver(connString)
		default:
			var pgOpts []postgres.Option
			if len(opts.PostgresSchemas) > 0 {
				pgOpts = append(pgOpts, postgres.WithSchemas(opts.PostgresSchemas...))
			}
			return postgres.NewDriver(connString, pgOpts...)
		}
	}
}
