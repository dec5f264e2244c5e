// Package session implements the per-tab query session: the state
// machine tying a registered relation, raw filter/sort fragments and a
// page window to bounded, supersedable queries against the embedded
// engine.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wansanai/ParquetGrip/core"
)

// Phase is the session's lifecycle state.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseLoading
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Session is one tab's query state. All mutating calls bump a generation
// token; a fetch result is applied only if its token still matches, so a
// stale in-flight query can never overwrite newer state.
type Session struct {
	id  string
	eng core.Engine

	mu        sync.Mutex
	rel       core.Relation
	path      string
	format    string
	filter    string
	sort      string
	pageIndex int
	pageSize  int
	scroll    int

	phase     Phase
	lastQuery string
	pending   string
	lastErr   error
	page      *Page

	rowCount int64
	counted  bool

	gen      uint64
	inFlight bool

	changed chan struct{}
}

// New creates an empty session. pageSize <= 0 selects the default.
func New(eng core.Engine, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Session{
		id:       uuid.New().String(),
		eng:      eng,
		pageSize: pageSize,
		phase:    PhaseEmpty,
		changed:  make(chan struct{}, 1),
	}
}

// ID returns the session's stable identity.
func (s *Session) ID() string { return s.id }

// Changed returns a channel that receives a coalesced signal whenever the
// session's observable state changes. The rendering collaborator may poll
// View instead; nothing blocks on this channel.
func (s *Session) Changed() <-chan struct{} { return s.changed }

func (s *Session) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Open binds the session to a file, replacing any current relation and
// resetting filter, sort and paging. format may be empty to detect from
// the path. On failure the session moves to the error state and keeps
// the path for persistence.
func (s *Session) Open(ctx context.Context, path, format string) error {
	return s.open(ctx, path, format, "", "", 0, 0)
}

// Restore binds a persisted tab, resuming at its saved filter, sort,
// page and scroll position.
func (s *Session) Restore(ctx context.Context, path, format, filter, sort string, pageIndex, scroll int) error {
	return s.open(ctx, path, format, filter, sort, pageIndex, scroll)
}

func (s *Session) open(ctx context.Context, path, format, filter, sort string, pageIndex, scroll int) error {
	if pageIndex < 0 {
		pageIndex = 0
	}
	if scroll < 0 {
		scroll = 0
	}

	s.mu.Lock()
	old := s.rel
	s.rel = nil
	s.gen++
	s.pending = ""
	s.page = nil
	s.lastQuery = ""
	s.counted = false
	s.rowCount = 0
	s.filter = filter
	s.sort = sort
	s.pageIndex = pageIndex
	s.scroll = scroll
	s.path = path
	s.format = format
	s.phase = PhaseLoading
	s.lastErr = nil
	s.mu.Unlock()
	s.signal()

	if old != nil {
		s.eng.Deregister(old)
	}

	rel, err := s.eng.Register(ctx, path, format)

	s.mu.Lock()
	if s.path != path {
		// Superseded by another Open while registering.
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.phase = PhaseError
		s.lastErr = err
		s.mu.Unlock()
		s.signal()
		return err
	}
	s.rel = rel
	s.format = rel.Format()
	s.dispatchLocked(ctx, false)
	s.mu.Unlock()
	return nil
}

// SetFilter replaces the raw filter fragment and refetches. With no
// relation bound the fragment is only stored.
func (s *Session) SetFilter(ctx context.Context, filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filter == s.filter {
		return
	}
	s.filter = filter
	s.pageIndex = 0
	if s.rel != nil {
		s.dispatchLocked(ctx, false)
	}
}

// SetSort replaces the raw sort fragment and refetches.
func (s *Session) SetSort(ctx context.Context, sort string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sort == s.sort {
		return
	}
	s.sort = sort
	s.pageIndex = 0
	if s.rel != nil {
		s.dispatchLocked(ctx, false)
	}
}

// SetPage moves to another page window. Negative indexes are clamped to
// zero; an index past the end of the data yields an empty ready page.
func (s *Session) SetPage(ctx context.Context, index int) {
	if index < 0 {
		index = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index == s.pageIndex {
		return
	}
	s.pageIndex = index
	if s.rel != nil {
		s.dispatchLocked(ctx, false)
	}
}

// SetScroll records the viewport scroll offset for restoration. It never
// triggers a query.
func (s *Session) SetScroll(offset int) {
	s.mu.Lock()
	if offset < 0 {
		offset = 0
	}
	s.scroll = offset
	s.mu.Unlock()
}

// Refresh recomputes the current page, bypassing the cache.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rel == nil {
		return
	}
	s.dispatchLocked(ctx, true)
}

// FileChanged rebinds the relation after the underlying file was
// rewritten on disk. Rebinding re-describes the schema, so a rewrite
// that changed the file's shape is reflected; filter, sort and position
// are kept.
func (s *Session) FileChanged(ctx context.Context) {
	s.mu.Lock()
	if s.rel == nil {
		s.mu.Unlock()
		return
	}
	path, format := s.path, s.format
	filter, sort := s.filter, s.sort
	pageIndex, scroll := s.pageIndex, s.scroll
	s.mu.Unlock()
	s.open(ctx, path, format, filter, sort, pageIndex, scroll)
}

// CloseFile unbinds the relation and returns to the empty state.
func (s *Session) CloseFile() {
	s.mu.Lock()
	old := s.rel
	s.rel = nil
	s.gen++
	s.pending = ""
	s.page = nil
	s.lastQuery = ""
	s.path = ""
	s.format = ""
	s.filter = ""
	s.sort = ""
	s.pageIndex = 0
	s.scroll = 0
	s.counted = false
	s.rowCount = 0
	s.phase = PhaseEmpty
	s.lastErr = nil
	s.mu.Unlock()
	if old != nil {
		s.eng.Deregister(old)
	}
	s.signal()
}

// Close is the terminal transition; the caller removes the session from
// its collection afterwards.
func (s *Session) Close() {
	s.CloseFile()
}

// MarkFileMissing moves the session to the error state while keeping the
// last fetched page visible. Used when the underlying file disappears.
func (s *Session) MarkFileMissing() {
	s.mu.Lock()
	s.gen++
	s.pending = ""
	s.phase = PhaseError
	s.lastErr = fmt.Errorf("%w: %s no longer exists", core.ErrIO, s.path)
	s.mu.Unlock()
	s.signal()
}

// dispatchLocked composes the effective statement and starts or redirects
// the session's single background fetch. Caller holds s.mu.
func (s *Session) dispatchLocked(ctx context.Context, force bool) {
	s.gen++
	stmt, err := Compose(s.rel.Name(), s.filter, s.sort, s.pageIndex, s.pageSize)
	if err != nil {
		// Previous page stays visible alongside the error.
		s.phase = PhaseError
		s.lastErr = err
		s.signal()
		return
	}
	if !force && s.page.ValidFor(stmt, s.pageIndex) {
		s.phase = PhaseReady
		s.lastErr = nil
		s.signal()
		return
	}
	s.pending = stmt
	s.phase = PhaseLoading
	s.lastErr = nil
	s.signal()
	if s.inFlight {
		// The running fetch observes the generation bump and re-executes
		// the pending statement instead of queuing a second query.
		return
	}
	s.inFlight = true
	// The fetch outlives the caller: a request-scoped context is
	// cancelled the moment its handler returns, which would kill the
	// engine query mid-flight. Detach from cancellation, keep the values.
	go s.fetch(context.WithoutCancel(ctx), s.gen, stmt)
}

// fetch is the session's single background worker. It loops while the
// parameters keep changing underneath it, applying only results whose
// generation still matches.
func (s *Session) fetch(ctx context.Context, gen uint64, stmt string) {
	for {
		cols, rows, err := s.eng.Execute(ctx, stmt)

		s.mu.Lock()
		if gen != s.gen {
			// Superseded. Pick up the newest pending statement, or stop
			// if the session is no longer waiting for data.
			if s.phase != PhaseLoading || s.pending == "" {
				s.inFlight = false
				s.mu.Unlock()
				return
			}
			gen = s.gen
			stmt = s.pending
			s.mu.Unlock()
			continue
		}

		s.inFlight = false
		s.pending = ""
		var rel core.Relation
		var needCount bool
		if err != nil {
			s.phase = PhaseError
			s.lastErr = err
		} else {
			s.lastQuery = stmt
			s.page = &Page{
				SessionID: s.id,
				Index:     s.pageIndex,
				Query:     stmt,
				Columns:   cols,
				Rows:      rows,
				FetchedAt: time.Now(),
			}
			s.phase = PhaseReady
			s.lastErr = nil
			rel = s.rel
			needCount = !s.counted
		}
		s.mu.Unlock()
		s.signal()

		if needCount && rel != nil {
			go s.countRows(ctx, rel)
		}
		return
	}
}

// countRows fills in the row-count hint off the interactive path.
func (s *Session) countRows(ctx context.Context, rel core.Relation) {
	n, err := s.eng.RowCount(ctx, rel)
	if err != nil {
		core.Debugf(ctx, "row count for %s: %v", rel.Path(), err)
		return
	}
	s.mu.Lock()
	if s.rel == rel {
		s.rowCount = n
		s.counted = true
	}
	s.mu.Unlock()
	s.signal()
}

// View is a consistent read-only snapshot for the rendering collaborator.
type View struct {
	ID            string        `json:"id"`
	Path          string        `json:"path"`
	Name          string        `json:"name"`
	Format        string        `json:"format"`
	Phase         string        `json:"phase"`
	Filter        string        `json:"filter"`
	Sort          string        `json:"sort"`
	PageIndex     int           `json:"page_index"`
	PageSize      int           `json:"page_size"`
	ScrollOffset  int           `json:"scroll_offset"`
	Columns       []core.Column `json:"columns,omitempty"`
	Rows          [][]string    `json:"rows,omitempty"`
	RowCount      int64         `json:"row_count"`
	RowCountKnown bool          `json:"row_count_known"`
	LastQuery     string        `json:"last_query,omitempty"`
	Error         string        `json:"error,omitempty"`
	Status        string        `json:"status"`
}

// View snapshots the session. In the error state the rows are the last
// good page, rendered alongside the error text.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:            s.id,
		Path:          s.path,
		Format:        s.format,
		Phase:         s.phase.String(),
		Filter:        s.filter,
		Sort:          s.sort,
		PageIndex:     s.pageIndex,
		PageSize:      s.pageSize,
		ScrollOffset:  s.scroll,
		RowCount:      s.rowCount,
		RowCountKnown: s.counted,
		LastQuery:     s.lastQuery,
	}
	if s.path != "" {
		v.Name = filepath.Base(s.path)
	}
	if s.page != nil {
		v.Columns = s.page.Columns
		v.Rows = s.page.Rows
	} else if s.rel != nil {
		v.Columns = s.rel.Schema()
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	v.Status = s.statusLocked()
	return v
}

// Err returns the session's held error, nil outside the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseError {
		return nil
	}
	return s.lastErr
}

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Page returns the held page, which may be stale in the error state.
func (s *Session) Page() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Path returns the bound file path, empty for an empty tab.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) statusLocked() string {
	switch s.phase {
	case PhaseEmpty:
		return "No file loaded"
	case PhaseLoading:
		if s.page == nil {
			return "Opening " + filepath.Base(s.path) + "..."
		}
		return "Loading..."
	case PhaseReady:
		if s.page == nil {
			return "Ready"
		}
		if s.counted {
			return fmt.Sprintf("Loaded %d rows (%d total)", len(s.page.Rows), s.rowCount)
		}
		return fmt.Sprintf("Loaded %d rows", len(s.page.Rows))
	case PhaseError:
		if s.lastErr != nil {
			return "Error: " + s.lastErr.Error()
		}
		return "Error"
	default:
		return ""
	}
}
