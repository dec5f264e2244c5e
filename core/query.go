package core

import (
	"context"
)

// Column is one column of a relation's schema, in declared order.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relation is a named, queryable binding to a data file inside the
// embedded engine. A Relation belongs to exactly one session.
type Relation interface {
	// Name returns the engine-level binding name, usable in a FROM clause.
	Name() string

	// Path returns the source file path.
	Path() string

	// Format returns the detected file format (parquet, csv, json).
	Format() string

	// Schema returns the ordered column list.
	Schema() []Column
}

// Engine defines the interface to the embedded query engine.
type Engine interface {
	// Register binds a file to a queryable relation. Registering the same
	// (path, format) pair twice returns the same Relation.
	Register(ctx context.Context, path, format string) (Relation, error)

	// Deregister drops the relation's engine binding.
	Deregister(rel Relation) error

	// Execute runs a statement and returns the result schema plus all rows
	// rendered as display strings. Engine error text is preserved verbatim.
	Execute(ctx context.Context, stmt string) ([]Column, [][]string, error)

	// RowCount returns the total row count of the relation. May be slow;
	// callers must keep it off the interactive path.
	RowCount(ctx context.Context, rel Relation) (int64, error)

	// Close releases resources.
	Close() error
}
