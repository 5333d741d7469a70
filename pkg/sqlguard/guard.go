package sqlguard

import (
	"fmt"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // ValueExpr implementation for the parser
)

// Guard parses engine-generated SQL before it reaches the database, so a
// malformed statement fails fast with the offending text instead of a
// driver error mid-migration.
type Guard struct {
	mu sync.Mutex
	p  *parser.Parser
}

// New creates a Guard
func New() *Guard {
	return &Guard{p: parser.New()}
}

// ValidateDDL checks that sql is exactly one well-formed DDL statement of
// an expected class (CREATE TABLE / ALTER TABLE / DROP TABLE / CREATE INDEX).
func (g *Guard) ValidateDDL(sql string) error {
	stmts, err := g.parse(sql)
	if err != nil {
		return fmt.Errorf("generated DDL does not parse: %w", err)
	}
	if len(stmts) != 1 {
		return fmt.Errorf("generated DDL must be a single statement, got %d", len(stmts))
	}

	switch stmts[0].(type) {
	case *ast.CreateTableStmt, *ast.AlterTableStmt, *ast.DropTableStmt, *ast.CreateIndexStmt:
		return nil
	}
	return fmt.Errorf("statement is not DDL: %T", stmts[0])
}

// ValidateSingleStatement checks that sql parses as exactly one statement
// of any kind. Used for generated DML before execution.
func (g *Guard) ValidateSingleStatement(sql string) error {
	stmts, err := g.parse(sql)
	if err != nil {
		return fmt.Errorf("generated SQL does not parse: %w", err)
	}
	if len(stmts) != 1 {
		return fmt.Errorf("generated SQL must be a single statement, got %d", len(stmts))
	}
	return nil
}

// parse runs the underlying parser. parser.Parser is not safe for
// concurrent use, hence the mutex.
func (g *Guard) parse(sql string) ([]ast.StmtNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stmts, _, err := g.p.Parse(sql, "", "")
	return stmts, err
}
