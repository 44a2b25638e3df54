// Package sqlexec provides the "sql" shape, which runs one statement against
// a SQLite database.
//
// Queries (SELECT, WITH, PRAGMA, VALUES, EXPLAIN) store their rows as a list of
// objects in "rs". Any other statement stores its affected row count in
// "rows_affected".
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/specialistvlad/flowgrid/internal/ctxlog"
	"github.com/specialistvlad/flowgrid/internal/flow"
	"github.com/specialistvlad/flowgrid/internal/registry"
	"github.com/specialistvlad/flowgrid/internal/runctx"
)

// Shape is the name flow definitions use for this handler.
const Shape = "sql"

// Variables written by the handler.
const (
	RowsVar     = "rs"
	AffectedVar = "rows_affected"
)

var queryKeywords = []string{"select", "with", "pragma", "values", "explain"}

// Module implements the registry.Module interface for this package. It keeps
// one connection pool per data source for the life of the process.
type Module struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// Close closes every database the module opened.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for dsn, db := range m.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", dsn, err))
		}
	}
	m.dbs = nil
	return errors.Join(errs...)
}

func (m *Module) open(dsn string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.dbs[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource: %w", err)
	}
	if dsn == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if m.dbs == nil {
		m.dbs = make(map[string]*sql.DB)
	}
	m.dbs[dsn] = db
	return db, nil
}

type handler struct {
	registry.Downstream
	reg *registry.Registry
	m   *Module
}

func (h *handler) Shape() string { return Shape }
func (h *handler) Async() bool   { return true }

func (h *handler) Execute(ctx context.Context, node *flow.Node, _ *runctx.Context, vars map[string]any) error {
	attrs := h.reg.Attrs(node, vars)
	dsn, err := attrs.Require("datasource")
	if err != nil {
		return err
	}
	stmt, err := attrs.Require("statement")
	if err != nil {
		return err
	}
	args, err := statementArgs(attrs)
	if err != nil {
		return err
	}

	db, err := h.m.open(dsn)
	if err != nil {
		return err
	}

	logger := ctxlog.FromContext(ctx).With("node", node.ID)
	if isQuery(stmt) {
		rows, err := query(ctx, db, stmt, args)
		if err != nil {
			return err
		}
		vars[RowsVar] = rows
		logger.Debug("Query finished.", "rows", len(rows))
		return nil
	}

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	vars[AffectedVar] = n
	logger.Debug("Statement executed.", "rows_affected", n)
	return nil
}

func statementArgs(attrs registry.Attrs) ([]any, error) {
	v, ok, err := attrs.Value("args")
	if err != nil || !ok || v == nil {
		return nil, err
	}
	list, isList := v.([]any)
	if !isList {
		return []any{v}, nil
	}
	return list, nil
}

func isQuery(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimLeft(fields[0], "("))
	for _, kw := range queryKeywords {
		if first == kw {
			return true
		}
	}
	return false
}

func query(ctx context.Context, db *sql.DB, stmt string, args []any) ([]any, error) {
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, isBytes := values[i].([]byte); isBytes {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&handler{reg: r, m: m})
}
