// Package state persists the session manager's tab collection as a
// structured JSON document. Unknown fields are ignored on load and
// missing fields default to zero, so newer documents stay readable.
package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/wansanai/ParquetGrip/core"
)

// DocumentVersion is written into every saved document.
const DocumentVersion = 1

// Tab is the persisted state of one session.
type Tab struct {
	Path         string `json:"path"`
	Format       string `json:"format,omitempty"`
	Filter       string `json:"filter,omitempty"`
	Sort         string `json:"sort,omitempty"`
	PageIndex    int    `json:"page_index,omitempty"`
	PageSize     int    `json:"page_size,omitempty"`
	ScrollOffset int    `json:"scroll_offset,omitempty"`
}

// Document is the persisted state of the whole manager. Layout is opaque
// to the core and passed through unexamined.
type Document struct {
	Version   int             `json:"version"`
	ActiveTab int             `json:"active_tab"`
	Layout    json.RawMessage `json:"layout,omitempty"`
	Tabs      []Tab           `json:"tabs"`
}

// Store reads and writes the document on a filesystem. The filesystem
// sits behind afero so tests run against an in-memory fs.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore creates a store writing to path on fs.
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted document. A missing file yields an empty
// document; an unreadable or malformed one yields ErrPersistenceCorrupt.
func (s *Store) Load() (*Document, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	if !exists {
		return &Document{Version: DocumentVersion, ActiveTab: -1}, nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIO, err)
	}

	doc := &Document{ActiveTab: -1}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistenceCorrupt, err)
	}
	return doc, nil
}

// Save writes the document atomically: a temp file is written next to the
// target and renamed over it, so a crash leaves either the old or the new
// document.
func (s *Store) Save(doc *Document) error {
	doc.Version = DocumentVersion

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	return nil
}
