package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// DiscoveryService introspects databases into schema graphs. Graphs are
// published by pointer swap and never modified afterwards.
type DiscoveryService struct {
	conns      *ConnectionManager
	state      *State
	sampleRows int
	logger     *slog.Logger

	version  atomic.Uint64
	active   atomic.Pointer[domain.SchemaGraph]
	inflight singleflight.Group

	mu     sync.RWMutex
	graphs map[string]*domain.SchemaGraph
}

func NewDiscoveryService(conns *ConnectionManager, state *State, sampleRows int, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{
		conns:      conns,
		state:      state,
		sampleRows: sampleRows,
		logger:     logger,
		graphs:     make(map[string]*domain.SchemaGraph),
	}
}

// Discover introspects connString and publishes a freshly versioned graph.
// An empty database yields a graph with zero tables and diagnostics, not an
// error.
func (s *DiscoveryService) Discover(ctx context.Context, connString string) (*domain.SchemaGraph, error) {
	id := domain.ConnectionIdentity(connString)
	v, err, _ := s.inflight.Do(id, func() (any, error) {
		return s.discover(ctx, connString, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SchemaGraph), nil
}

// GraphFor returns the published graph of connString, discovering it first
// when none exists.
func (s *DiscoveryService) GraphFor(ctx context.Context, connString string) (*domain.SchemaGraph, error) {
	if g, ok := s.Graph(domain.ConnectionIdentity(connString)); ok {
		return g, nil
	}
	return s.Discover(ctx, connString)
}

// Graph returns the latest graph published for a connection identity.
func (s *DiscoveryService) Graph(connectionID string) (*domain.SchemaGraph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[connectionID]
	return g, ok
}

// Active returns the most recently published graph of any connection.
func (s *DiscoveryService) Active() *domain.SchemaGraph {
	return s.active.Load()
}

func (s *DiscoveryService) discover(ctx context.Context, connString, id string) (*domain.SchemaGraph, error) {
	start := time.Now()
	pool, err := s.conns.Pool(connString)
	if err != nil {
		return nil, err
	}
	h, err := s.conns.Acquire(ctx, connString)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	conn := h.Conn()

	info, err := conn.DatabaseInfo(ctx)
	if err != nil {
		return nil, catalogError(ctx, "reading database information", err, connString)
	}
	infos, err := conn.ListTables(ctx)
	if err != nil {
		return nil, catalogError(ctx, "listing tables", err, connString)
	}

	tables := make([]domain.Table, 0, len(infos))
	var declared []domain.ForeignKeyRelation
	for _, ti := range infos {
		detail, err := conn.DescribeTable(ctx, ti.Name)
		if err != nil {
			return nil, catalogError(ctx, fmt.Sprintf("describing table %q", ti.Name), err, connString)
		}
		t := tableFromDetail(ti, detail)
		if s.sampleRows > 0 {
			rows, err := conn.SampleRows(ctx, ti.Name, s.sampleRows)
			if err != nil {
				s.logger.WarnContext(ctx, "sampling table failed",
					slog.String("connection_id", id),
					slog.String("table", ti.Name),
					slog.String("error", domain.ScrubSecrets(err.Error(), connString)),
				)
			}
			t.SampleRows = rows
		}
		t.Purpose, t.PurposeReason = domain.ClassifyTable(&t)
		tables = append(tables, t)
		for _, fk := range detail.ForeignKeys {
			declared = append(declared, domain.ForeignKeyRelation{
				SourceTable:  ti.Name,
				SourceColumn: fk.ColumnName,
				TargetTable:  fk.ReferencedTable,
				TargetColumn: fk.ReferencedColumn,
				Kind:         domain.RelationDeclared,
			})
		}
	}

	relations := append(declared, domain.InferRelations(tables, declared)...)
	g := domain.NewSchemaGraph(domain.SchemaGraph{
		Version:         s.version.Add(1),
		ConnectionID:    id,
		Dialect:         pool.Driver().Dialect().Name(),
		DatabaseName:    info.Name,
		DatabaseVersion: info.Version,
		DiscoveredAt:    time.Now().UTC(),
	}, tables, relations)
	if len(g.Tables) == 0 {
		g.Diagnostics = emptySchemaDiagnostics(info)
		s.logger.WarnContext(ctx, "no tables found",
			slog.String("connection_id", id),
			slog.String("error.type", string(domain.KindSchemaDiscovery)),
		)
	}

	s.publish(id, g)
	s.logger.InfoContext(ctx, "schema discovered",
		slog.String("connection_id", id),
		slog.String("db.dialect", string(g.Dialect)),
		slog.Uint64("schema_version", g.Version),
		slog.Int("tables", len(g.Tables)),
		slog.Int("relations", len(g.Relations)),
		slog.Duration("duration", time.Since(start)),
	)
	return g, nil
}

func (s *DiscoveryService) publish(id string, g *domain.SchemaGraph) {
	s.mu.Lock()
	s.graphs[id] = g
	s.mu.Unlock()
	s.active.Store(g)
	if s.state != nil {
		s.state.SchemaPublished(id, g.Version)
	}
}

func tableFromDetail(info port.TableInfo, d *port.TableDetail) domain.Table {
	t := domain.Table{Name: info.Name, RowEstimate: info.RowEstimate}
	for _, c := range d.Columns {
		t.Columns = append(t.Columns, domain.Column{
			Name:             c.Name,
			Type:             c.DataType,
			Nullable:         c.IsNullable,
			DistinctEstimate: c.DistinctEstimate,
		})
		if c.IsPrimaryKey {
			t.PrimaryKey = append(t.PrimaryKey, c.Name)
		}
	}
	return t
}

func emptySchemaDiagnostics(info port.DatabaseInfo) []string {
	d := []string{fmt.Sprintf("connected to database %q but found no tables", info.Name)}
	if info.Schema != "" {
		d = append(d, fmt.Sprintf("searched schema %q; tables in other schemas are not visible", info.Schema))
	}
	return append(d,
		"the connection string may point at the wrong database",
		"the database user may lack privileges to read the catalog",
	)
}

func catalogError(ctx context.Context, doing string, err error, connString string) error {
	if ctx.Err() != nil {
		return contextError(ctx)
	}
	return domain.NewError(domain.KindSchemaDiscovery, doing+" failed: "+domain.ScrubSecrets(err.Error(), connString), err)
}
