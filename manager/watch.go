package manager

import (
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/wansanai/ParquetGrip/core"
)

// watcher invalidates tabs when their files change outside the process.
// A rewrite refetches the current page; a removal moves the tab to the
// error state while its last page stays visible.
type watcher struct {
	m  *Manager
	fw *fsnotify.Watcher
}

func newWatcher(m *Manager) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{m: m, fw: fw}
	go w.loop()
	return w, nil
}

func (w *watcher) add(path string) {
	if err := w.fw.Add(path); err != nil {
		core.Warnf(w.m.ctx, "cannot watch %s: %v", path, err)
	}
}

func (w *watcher) remove(path string) {
	w.fw.Remove(path)
}

func (w *watcher) close() {
	w.fw.Close()
}

func (w *watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			core.Warnf(w.m.ctx, "file watcher: %v", err)
		case <-w.m.done:
			return
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	for i, s := range w.m.Tabs() {
		if s.Path() != ev.Name {
			continue
		}
		switch {
		case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
			// An atomic rename-over replacement removes the watched inode
			// while the path lives on. The kernel watch died with the old
			// inode either way, so re-add it when the path still exists.
			if _, err := os.Stat(ev.Name); err == nil {
				core.Debugf(w.m.ctx, "%s replaced on disk, refreshing tab %d", ev.Name, i)
				w.add(ev.Name)
				s.FileChanged(w.m.ctx)
				return
			}
			core.Infof(w.m.ctx, "%s disappeared, tab %d marked stale", ev.Name, i)
			s.MarkFileMissing()
		case ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create):
			core.Debugf(w.m.ctx, "%s changed, refreshing tab %d", ev.Name, i)
			s.FileChanged(w.m.ctx)
		}
		return
	}
}
