// Package engine wraps the embedded DuckDB instance and manages file
// registrations. One Engine is shared process-wide; each registered
// relation is owned by a single session.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
	"golang.org/x/sync/singleflight"

	"github.com/wansanai/ParquetGrip/core"
)

// Ensure Engine implements core.Engine.
var _ core.Engine = (*Engine)(nil)

// Supported file formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatJSON    = "json"
)

// Engine is a synchronized handle to one in-memory DuckDB instance.
type Engine struct {
	DB *sql.DB

	mu   sync.Mutex
	rels map[string]*Relation // keyed by source path

	counts singleflight.Group
}

// New opens an in-memory DuckDB instance. The pool is pinned to a single
// connection so session-level settings apply consistently.
func New() (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	db.SetMaxOpenConns(1)

	threads := runtime.GOMAXPROCS(0)
	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	return &Engine{
		DB:   db,
		rels: make(map[string]*Relation),
	}, nil
}

// FormatForPath detects the file format from the path extension.
func FormatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pqt":
		return FormatParquet, nil
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".json", ".ndjson", ".jsonl":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, path)
	}
}

// readerFor returns the DuckDB table function reading the given path.
func readerFor(path, format string) (string, error) {
	escaped := strings.ReplaceAll(path, "'", "''")
	switch format {
	case FormatParquet:
		return fmt.Sprintf("read_parquet('%s')", escaped), nil
	case FormatCSV:
		return fmt.Sprintf("read_csv_auto('%s', header=true)", escaped), nil
	case FormatJSON:
		return fmt.Sprintf("read_json_auto('%s')", escaped), nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, format)
	}
}

// Register binds a file to a named view and loads its schema. Registering
// the same (path, format) pair twice returns the existing relation; the
// same path with a different format is a conflict.
func (e *Engine) Register(ctx context.Context, path, format string) (core.Relation, error) {
	if format == "" {
		var err error
		format, err = FormatForPath(path)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	if rel, ok := e.rels[path]; ok {
		e.mu.Unlock()
		if rel.format != format {
			return nil, fmt.Errorf("%w: %s is %s, not %s", core.ErrSchemaConflict, path, rel.format, format)
		}
		return rel, nil
	}
	e.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIO, err)
	}

	reader, err := readerFor(path, format)
	if err != nil {
		return nil, err
	}

	name := "rel_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", name, reader)
	if _, err := e.DB.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}

	cols, err := e.describe(ctx, name)
	if err != nil {
		e.DB.ExecContext(ctx, "DROP VIEW IF EXISTS "+name)
		return nil, err
	}

	rel := &Relation{
		engine:  e,
		name:    name,
		path:    path,
		format:  format,
		columns: cols,
	}

	e.mu.Lock()
	// Lost a race with a concurrent Register for the same path.
	if existing, ok := e.rels[path]; ok {
		e.mu.Unlock()
		e.DB.ExecContext(ctx, "DROP VIEW IF EXISTS "+name)
		return existing, nil
	}
	e.rels[path] = rel
	e.mu.Unlock()

	core.Debugf(ctx, "registered %s as %s (%d columns)", path, name, len(cols))
	return rel, nil
}

// Deregister drops the relation's view binding.
func (e *Engine) Deregister(rel core.Relation) error {
	r, ok := rel.(*Relation)
	if !ok || r == nil {
		return nil
	}
	e.mu.Lock()
	if current, ok := e.rels[r.path]; ok && current == r {
		delete(e.rels, r.path)
	}
	e.mu.Unlock()
	_, err := e.DB.Exec("DROP VIEW IF EXISTS " + r.name)
	return err
}

// describe loads the ordered column schema of a bound view.
func (e *Engine) describe(ctx context.Context, name string) ([]core.Column, error) {
	rows, err := e.DB.QueryContext(ctx, "DESCRIBE SELECT * FROM "+name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}

	var cols []core.Column
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
		}
		// DESCRIBE yields column_name, column_type, then nullability info.
		col := core.Column{}
		if s, ok := values[0].(string); ok {
			col.Name = s
		}
		if len(values) > 1 {
			if s, ok := values[1].(string); ok {
				col.Type = s
			}
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}
	return cols, nil
}

// Execute runs a statement and renders every cell to a display string.
func (e *Engine) Execute(ctx context.Context, stmt string) ([]core.Column, [][]string, error) {
	rows, err := e.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}

	cols := make([]core.Column, len(names))
	for i, n := range names {
		cols[i] = core.Column{Name: n, Type: types[i].DatabaseTypeName()}
	}

	var result [][]string
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
		}
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = renderCell(v)
		}
		result = append(result, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrQuery, err)
	}
	return cols, result, nil
}

// RowCount counts the relation's rows. Concurrent requests for the same
// relation are collapsed into one engine query.
func (e *Engine) RowCount(ctx context.Context, rel core.Relation) (int64, error) {
	r, ok := rel.(*Relation)
	if !ok {
		return 0, fmt.Errorf("%w: foreign relation", core.ErrQuery)
	}
	if n, ok := r.cachedRowCount(); ok {
		return n, nil
	}

	v, err, _ := e.counts.Do(r.name, func() (any, error) {
		var n int64
		row := e.DB.QueryRowContext(ctx, "SELECT count(*) FROM "+r.name)
		if err := row.Scan(&n); err != nil {
			return int64(0), fmt.Errorf("%w: %v", core.ErrQuery, err)
		}
		r.setRowCount(n)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Close releases the DuckDB instance.
func (e *Engine) Close() error {
	if e.DB != nil {
		return e.DB.Close()
	}
	return nil
}
