package engine

import (
	"sync"

	"github.com/wansanai/ParquetGrip/core"
)

var _ core.Relation = (*Relation)(nil)

// Relation is a registered file binding. The row count is filled in
// lazily by Engine.RowCount.
type Relation struct {
	engine  *Engine
	name    string
	path    string
	format  string
	columns []core.Column

	mu       sync.Mutex
	rowCount int64
	counted  bool
}

func (r *Relation) Name() string   { return r.name }
func (r *Relation) Path() string   { return r.path }
func (r *Relation) Format() string { return r.format }

func (r *Relation) Schema() []core.Column {
	cols := make([]core.Column, len(r.columns))
	copy(cols, r.columns)
	return cols
}

func (r *Relation) cachedRowCount() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowCount, r.counted
}

func (r *Relation) setRowCount(n int64) {
	r.mu.Lock()
	r.rowCount = n
	r.counted = true
	r.mu.Unlock()
}
