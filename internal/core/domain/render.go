package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the rendering differences between target databases.
type Dialect interface {
	Name() DialectName
	QuoteIdent(name string) string
	Placeholder(n int) string
}

type postgresDialect struct{}

func (postgresDialect) Name() DialectName          { return DialectPostgres }
func (postgresDialect) QuoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func (postgresDialect) Placeholder(n int) string   { return "$" + strconv.Itoa(n) }

type mysqlDialect struct{}

func (mysqlDialect) Name() DialectName          { return DialectMySQL }
func (mysqlDialect) QuoteIdent(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
func (mysqlDialect) Placeholder(int) string     { return "?" }

type sqliteDialect struct{}

func (sqliteDialect) Name() DialectName          { return DialectSQLite }
func (sqliteDialect) QuoteIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func (sqliteDialect) Placeholder(int) string     { return "?" }

// DialectFor returns the renderer rules of a database flavour.
func DialectFor(name DialectName) Dialect {
	switch name {
	case DialectMySQL:
		return mysqlDialect{}
	case DialectSQLite:
		return sqliteDialect{}
	default:
		return postgresDialect{}
	}
}

// RenderedQuery is query text with its positional parameters. Literal
// values never appear in Text.
type RenderedQuery struct {
	Text string `json:"text"`
	Args []any  `json:"args,omitempty"`
}

var validOps = map[CompareOp]bool{OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true}

// Render produces executable, parameterized query text for a plan.
func Render(p *QueryPlan, d Dialect) (RenderedQuery, error) {
	if p == nil || p.Subject == "" {
		return RenderedQuery{}, SQLGenerationError("empty query plan")
	}
	r := &renderer{d: d, aliases: map[string]string{}}
	for i, t := range p.Tables() {
		r.aliases[lowerASCII(t)] = "t" + strconv.Itoa(i)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	var cols []string
	for _, s := range p.Select {
		cols = append(cols, r.col(s.Column)+" AS "+d.QuoteIdent(s.Alias))
	}
	if a := p.Aggregate; a != nil {
		arg := "*"
		if a.Column != nil {
			arg = r.col(*a.Column)
		}
		cols = append(cols, fmt.Sprintf("%s(%s) AS %s", a.Func, arg, d.QuoteIdent(a.Alias)))
	}
	if len(cols) == 0 {
		return RenderedQuery{}, SQLGenerationError("query plan selects nothing")
	}
	b.WriteString(strings.Join(cols, ", "))

	fmt.Fprintf(&b, " FROM %s AS %s", d.QuoteIdent(p.Subject), r.aliases[lowerASCII(p.Subject)])
	joined := []string{p.Subject}
	for _, j := range p.Joins {
		next := j.TargetTable
		if containsFold(joined, next) {
			next = j.SourceTable
		}
		joined = append(joined, next)
		fmt.Fprintf(&b, " JOIN %s AS %s ON %s = %s",
			d.QuoteIdent(next), r.aliases[lowerASCII(next)],
			r.col(ColumnRef{Table: j.SourceTable, Column: j.SourceColumn}),
			r.col(ColumnRef{Table: j.TargetTable, Column: j.TargetColumn}))
	}

	if len(p.Filters) > 0 {
		preds := make([]string, 0, len(p.Filters))
		for _, f := range p.Filters {
			if !validOps[f.Op] {
				return RenderedQuery{}, SQLGenerationError("unsupported comparison " + string(f.Op))
			}
			preds = append(preds, fmt.Sprintf("%s %s %s", r.col(f.Column), f.Op, r.bind(f.Value)))
		}
		b.WriteString(" WHERE " + strings.Join(preds, " AND "))
	}

	if len(p.GroupBy) > 0 {
		groups := make([]string, len(p.GroupBy))
		for i, g := range p.GroupBy {
			groups[i] = r.col(g)
		}
		b.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}

	if len(p.OrderBy) > 0 {
		terms := make([]string, len(p.OrderBy))
		for i, o := range p.OrderBy {
			expr := d.QuoteIdent(o.Alias)
			if o.Column != nil {
				expr = r.col(*o.Column)
			}
			if o.Desc {
				expr += " DESC"
			}
			terms[i] = expr
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	if p.Limit > 0 && !p.Scalar {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	}
	return RenderedQuery{Text: b.String(), Args: r.args}, nil
}

type renderer struct {
	d       Dialect
	aliases map[string]string
	args    []any
}

func (r *renderer) col(c ColumnRef) string {
	alias, ok := r.aliases[lowerASCII(c.Table)]
	if !ok {
		return r.d.QuoteIdent(c.Table) + "." + r.d.QuoteIdent(c.Column)
	}
	return alias + "." + r.d.QuoteIdent(c.Column)
}

func (r *renderer) bind(v any) string {
	r.args = append(r.args, v)
	return r.d.Placeholder(len(r.args))
}
