package domain

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	ErrEmptyQuery     = errors.New("empty query")
	ErrNotAllowed     = errors.New("only read-only SELECT queries are allowed")
	ErrMultiStatement = errors.New("multiple statements are not allowed")
)

// StatementValidator rejects anything but one read-only SELECT.
type StatementValidator interface {
	Validate(query string) error
}

// QueryValidator checks statements with PostgreSQL's own parser. It is the
// last gate before synthesized text reaches a PostgreSQL connection.
type QueryValidator struct{}

func NewQueryValidator() *QueryValidator {
	return &QueryValidator{}
}

func (v *QueryValidator) Validate(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ErrEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("parsing query: %w", err)
	}
	switch len(tree.Stmts) {
	case 0:
		return ErrEmptyQuery
	case 1:
	default:
		return ErrMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return ErrEmptyQuery
	}
	sel, ok := stmt.Node.(*pg_query.Node_SelectStmt)
	if !ok {
		return ErrNotAllowed
	}
	// SELECT INTO creates a table and FOR UPDATE takes row locks.
	if sel.SelectStmt.IntoClause != nil || len(sel.SelectStmt.LockingClause) > 0 {
		return ErrNotAllowed
	}
	return nil
}
