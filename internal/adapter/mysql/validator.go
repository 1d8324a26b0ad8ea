package mysql

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	pmysql "github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// Validator checks statements with the TiDB MySQL-dialect parser.
type Validator struct {
	mu     sync.Mutex // parser.Parser is not safe for concurrent use
	parser *parser.Parser
}

type ValidatorOption func(*parser.Parser)

// WithANSIQuotes reads double-quoted text as identifiers, as SQLite and
// standard SQL do.
func WithANSIQuotes() ValidatorOption {
	return func(p *parser.Parser) { p.SetSQLMode(pmysql.ModeANSIQuotes) }
}

func NewValidator(opts ...ValidatorOption) *Validator {
	p := parser.New()
	for _, o := range opts {
		o(p)
	}
	return &Validator{parser: p}
}

func (v *Validator) Validate(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return domain.ErrEmptyQuery
	}

	v.mu.Lock()
	stmts, _, err := v.parser.Parse(trimmed, "", "")
	v.mu.Unlock()
	if err != nil {
		return fmt.Errorf("parsing query: %w", err)
	}
	switch len(stmts) {
	case 0:
		return domain.ErrEmptyQuery
	case 1:
	default:
		return domain.ErrMultiStatement
	}

	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok {
		return domain.ErrNotAllowed
	}
	if sel.SelectIntoOpt != nil {
		return domain.ErrNotAllowed
	}
	if sel.LockInfo != nil && sel.LockInfo.LockType != ast.SelectLockNone {
		return domain.ErrNotAllowed
	}
	return nil
}
