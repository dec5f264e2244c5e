package session

import (
	"time"

	"github.com/wansanai/ParquetGrip/core"
)

// Page is one bounded window of result rows. A session holds at most one
// Page; it is replaced wholesale, never patched.
type Page struct {
	SessionID string
	Index     int
	Query     string
	Columns   []core.Column
	Rows      [][]string
	FetchedAt time.Time
}

// ValidFor reports whether the page still matches the session's current
// effective query and page index. Any mismatch forces recomputation.
func (p *Page) ValidFor(query string, index int) bool {
	return p != nil && p.Query == query && p.Index == index
}
