package core

import "errors"

// Error taxonomy shared across the engine, composer and persistence layers.
// Engine-reported text is wrapped around ErrQuery so it reaches the user
// verbatim while staying matchable with errors.Is.
var (
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrIO                 = errors.New("file unreadable")
	ErrInvalidFilter      = errors.New("invalid filter syntax")
	ErrInvalidSort        = errors.New("invalid sort syntax")
	ErrQuery              = errors.New("query execution failed")
	ErrSchemaConflict     = errors.New("path already registered with a different format")
	ErrPersistenceCorrupt = errors.New("persisted state is corrupt")
)
