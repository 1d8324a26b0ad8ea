package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Driver dials one pgx connection per pool handle.
type Driver struct {
	connString string
	config     *pgx.ConnConfig
	schemas    []string
	validator  *domain.QueryValidator
}

type Option func(*Driver)

// WithSchemas restricts discovery to the given schemas. Without it only the
// connection's current schema is searched.
func WithSchemas(schemas ...string) Option {
	return func(d *Driver) { d.schemas = schemas }
}

func NewDriver(connString string, opts ...Option) (*Driver, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput,
			"invalid postgres connection string: "+domain.ScrubSecrets(err.Error(), connString), err)
	}
	d := &Driver{connString: connString, config: cfg, validator: domain.NewQueryValidator()}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Driver) Dialect() domain.Dialect { return domain.DialectFor(domain.DialectPostgres) }

func (d *Driver) Connect(ctx context.Context) (port.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, d.config.Copy())
	if err != nil {
		return nil, domain.NewError(domain.KindConnection,
			fmt.Sprintf("connecting to postgres: %s", domain.ScrubSecrets(err.Error(), d.connString)), err)
	}
	return &Conn{conn: conn, schemas: d.schemas}, nil
}

func (d *Driver) Validate(query string) error { return d.validator.Validate(query) }

// Close is a no-op; connections are closed individually.
func (d *Driver) Close() error { return nil }
