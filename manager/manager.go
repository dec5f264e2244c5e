// Package manager owns the ordered collection of open sessions (tabs),
// dispatches user edits to them, keeps the persisted document current and
// watches open files for outside changes.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/wansanai/ParquetGrip/core"
	"github.com/wansanai/ParquetGrip/session"
	"github.com/wansanai/ParquetGrip/state"
)

// Options configures a Manager.
type Options struct {
	// PageSize is the page size for new sessions. Zero selects the default.
	PageSize int

	// SaveDebounce is how long to coalesce rapid mutations before writing
	// the persisted document. Zero selects 500ms.
	SaveDebounce time.Duration

	// Watch enables invalidation of open tabs when their files change on
	// disk.
	Watch bool
}

// Manager is the per-process tab collection. All mutations are
// serialized; persistence writes happen on a single background writer.
type Manager struct {
	eng   core.Engine
	store *state.Store
	opts  Options
	ctx   context.Context

	mu       sync.Mutex
	sessions []*session.Session
	active   int
	layout   json.RawMessage
	closed   bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	watch *watcher
}

// New creates a manager. store may be nil to disable persistence.
func New(eng core.Engine, store *state.Store, opts Options) *Manager {
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = 500 * time.Millisecond
	}
	m := &Manager{
		eng:    eng,
		store:  store,
		opts:   opts,
		ctx:    core.WithLogger(context.Background(), "manager"),
		active: -1,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if store != nil {
		m.wg.Add(1)
		go m.saver()
	}
	if opts.Watch {
		w, err := newWatcher(m)
		if err != nil {
			core.Warnf(m.ctx, "file watching disabled: %v", err)
		} else {
			m.watch = w
		}
	}
	return m
}

// OpenTab opens path in a new tab and activates it. Opening an already
// open path activates the existing tab instead. The returned index is
// valid even when the open failed; the tab then holds the error.
func (m *Manager) OpenTab(ctx context.Context, path string) (int, error) {
	path = filepath.Clean(path)

	m.mu.Lock()
	for i, s := range m.sessions {
		if s.Path() == path {
			m.active = i
			m.scheduleSaveLocked()
			m.mu.Unlock()
			return i, nil
		}
	}
	s := session.New(m.eng, m.opts.PageSize)
	m.sessions = append(m.sessions, s)
	m.active = len(m.sessions) - 1
	idx := m.active
	m.scheduleSaveLocked()
	m.mu.Unlock()

	err := s.Open(ctx, path, "")
	if err == nil && m.watch != nil {
		m.watch.add(path)
	}
	return idx, err
}

// CloseTab closes the tab at index and re-clamps the active index.
// Closing the last tab leaves the manager in a valid empty state.
func (m *Manager) CloseTab(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.sessions) {
		m.mu.Unlock()
		return fmt.Errorf("no tab at index %d", index)
	}
	s := m.sessions[index]
	path := s.Path()
	m.sessions = append(m.sessions[:index], m.sessions[index+1:]...)
	switch {
	case len(m.sessions) == 0:
		m.active = -1
	case index < m.active:
		m.active--
	case m.active >= len(m.sessions):
		m.active = len(m.sessions) - 1
	}
	m.scheduleSaveLocked()
	m.mu.Unlock()

	if m.watch != nil && path != "" {
		m.watch.remove(path)
	}
	s.Close()
	return nil
}

// SetActive switches the active tab.
func (m *Manager) SetActive(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.sessions) {
		return fmt.Errorf("no tab at index %d", index)
	}
	if index != m.active {
		m.active = index
		m.scheduleSaveLocked()
	}
	return nil
}

// Active returns the active session and its index, or nil and -1.
func (m *Manager) Active() (*session.Session, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active < 0 || m.active >= len(m.sessions) {
		return nil, -1
	}
	return m.sessions[m.active], m.active
}

// Tab returns the session at index.
func (m *Manager) Tab(index int) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.sessions) {
		return nil, fmt.Errorf("no tab at index %d", index)
	}
	return m.sessions[index], nil
}

// Tabs returns the ordered sessions.
func (m *Manager) Tabs() []*session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// SetFilter routes a filter edit to the tab and schedules a save.
func (m *Manager) SetFilter(ctx context.Context, index int, filter string) error {
	s, err := m.Tab(index)
	if err != nil {
		return err
	}
	s.SetFilter(ctx, filter)
	m.scheduleSave()
	return nil
}

// SetSort routes a sort edit to the tab and schedules a save.
func (m *Manager) SetSort(ctx context.Context, index int, sort string) error {
	s, err := m.Tab(index)
	if err != nil {
		return err
	}
	s.SetSort(ctx, sort)
	m.scheduleSave()
	return nil
}

// SetPage routes a page navigation to the tab and schedules a save.
func (m *Manager) SetPage(ctx context.Context, index, pageIndex int) error {
	s, err := m.Tab(index)
	if err != nil {
		return err
	}
	s.SetPage(ctx, pageIndex)
	m.scheduleSave()
	return nil
}

// SetScroll records a tab's viewport offset and schedules a save.
func (m *Manager) SetScroll(index, offset int) error {
	s, err := m.Tab(index)
	if err != nil {
		return err
	}
	s.SetScroll(offset)
	m.scheduleSave()
	return nil
}

// Refresh recomputes a tab's current page.
func (m *Manager) Refresh(ctx context.Context, index int) error {
	s, err := m.Tab(index)
	if err != nil {
		return err
	}
	s.Refresh(ctx)
	return nil
}

// SetLayout stores the opaque window/layout blob for persistence.
func (m *Manager) SetLayout(layout json.RawMessage) {
	m.mu.Lock()
	m.layout = layout
	m.scheduleSaveLocked()
	m.mu.Unlock()
}

// Layout returns the opaque layout blob.
func (m *Manager) Layout() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layout
}

// Snapshot serializes the manager into a persisted document.
func (m *Manager) Snapshot() *state.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := &state.Document{
		Version:   state.DocumentVersion,
		ActiveTab: m.active,
		Layout:    m.layout,
		Tabs:      make([]state.Tab, 0, len(m.sessions)),
	}
	for _, s := range m.sessions {
		v := s.View()
		doc.Tabs = append(doc.Tabs, state.Tab{
			Path:         v.Path,
			Format:       v.Format,
			Filter:       v.Filter,
			Sort:         v.Sort,
			PageIndex:    v.PageIndex,
			PageSize:     v.PageSize,
			ScrollOffset: v.ScrollOffset,
		})
	}
	return doc
}

// Restore rebuilds the tab collection from a persisted document. A tab
// whose file no longer exists comes back in the error state; it never
// aborts restoring the remaining tabs.
func (m *Manager) Restore(ctx context.Context, doc *state.Document) {
	if doc == nil {
		return
	}
	seen := make(map[string]bool)
	for _, tab := range doc.Tabs {
		path := tab.Path
		if path != "" {
			// Each path gets exactly one tab, and so exactly one engine
			// binding. A hand-edited or future-version document may list
			// a path twice; the first occurrence wins.
			path = filepath.Clean(path)
			if seen[path] {
				core.Warnf(ctx, "dropping duplicate tab for %s", path)
				continue
			}
			seen[path] = true
		}

		pageSize := tab.PageSize
		if pageSize <= 0 {
			pageSize = m.opts.PageSize
		}
		s := session.New(m.eng, pageSize)
		m.mu.Lock()
		m.sessions = append(m.sessions, s)
		m.mu.Unlock()

		if path == "" {
			continue
		}
		if err := s.Restore(ctx, path, tab.Format, tab.Filter, tab.Sort, tab.PageIndex, tab.ScrollOffset); err != nil {
			core.Warnf(ctx, "restoring %s: %v", path, err)
			continue
		}
		if m.watch != nil {
			m.watch.add(path)
		}
	}

	m.mu.Lock()
	m.layout = doc.Layout
	m.active = doc.ActiveTab
	if m.active >= len(m.sessions) || len(m.sessions) == 0 {
		m.active = len(m.sessions) - 1
	}
	if m.active < 0 && len(m.sessions) > 0 {
		m.active = 0
	}
	m.mu.Unlock()
}

// Close flushes pending state synchronously and releases the watcher and
// all sessions. The engine itself is closed by the caller.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()

	if m.watch != nil {
		m.watch.close()
	}

	if m.store != nil {
		if err := m.store.Save(m.Snapshot()); err != nil {
			core.Errorf(m.ctx, "final state save failed: %v", err)
		}
	}

	for _, s := range m.Tabs() {
		s.Close()
	}
}

// scheduleSave wakes the background writer after the debounce window.
func (m *Manager) scheduleSave() {
	m.mu.Lock()
	m.scheduleSaveLocked()
	m.mu.Unlock()
}

func (m *Manager) scheduleSaveLocked() {
	if m.store == nil || m.closed {
		return
	}
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// saver is the single persistence writer. Rapid mutations coalesce into
// one write; a failed write is retried on the next tick instead of being
// surfaced to the user.
func (m *Manager) saver() {
	defer m.wg.Done()

	timer := time.NewTimer(m.opts.SaveDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-m.done:
			return
		case <-m.kick:
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.opts.SaveDebounce)
			armed = true
		case <-timer.C:
			armed = false
			if err := m.store.Save(m.Snapshot()); err != nil {
				core.Warnf(m.ctx, "state save failed, will retry: %v", err)
				timer.Reset(m.opts.SaveDebounce)
				armed = true
			}
		}
	}
}
