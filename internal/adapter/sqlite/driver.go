package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/guillermoBallester/hrquery/internal/adapter/mysql"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Driver serves one database file opened read-only.
type Driver struct {
	connString string
	name       string
	db         *sql.DB
	validator  *mysql.Validator
}

func NewDriver(connString string) (*Driver, error) {
	dsn, path, err := ParseURL(connString)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "invalid sqlite connection string", err)
	}
	return &Driver{
		connString: connString,
		name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		db:         db,
		validator:  mysql.NewValidator(mysql.WithANSIQuotes()),
	}, nil
}

// ParseURL maps sqlite:///abs/path.db, sqlite://rel.db and file: URIs to a
// read-only file URI for the driver. It also returns the file path.
func ParseURL(connString string) (dsn, path string, err error) {
	s := strings.TrimSpace(connString)
	lower := strings.ToLower(s)
	var query string

	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		path = s[len("sqlite://"):]
	case strings.HasPrefix(lower, "file:"):
		path = strings.TrimPrefix(s[len("file:"):], "//")
	default:
		return "", "", domain.Errorf(domain.KindInvalidInput, "invalid sqlite connection string, expected sqlite:///path/to/db")
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}
	if path == "" || path == ":memory:" {
		return "", "", domain.Errorf(domain.KindInvalidInput, "sqlite connection string must name a database file")
	}

	params := []string{"mode=ro"}
	for _, p := range strings.Split(query, "&") {
		if p != "" && !strings.HasPrefix(p, "mode=") {
			params = append(params, p)
		}
	}
	return "file:" + path + "?" + strings.Join(params, "&"), path, nil
}

func (d *Driver) Dialect() domain.Dialect { return domain.DialectFor(domain.DialectSQLite) }

func (d *Driver) Connect(ctx context.Context) (port.Conn, error) {
	conn, err := d.db.Conn(ctx)
	if err == nil {
		// Opening is lazy; touching the schema proves the file is a database.
		_, err = conn.ExecContext(ctx, "SELECT 1 FROM sqlite_master LIMIT 1")
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		return nil, domain.NewError(domain.KindConnection,
			fmt.Sprintf("opening sqlite database: %s", domain.ScrubSecrets(err.Error(), d.connString)), err)
	}
	return &Conn{conn: conn, name: d.name}, nil
}

func (d *Driver) Validate(query string) error { return d.validator.Validate(query) }

func (d *Driver) Close() error { return d.db.Close() }
