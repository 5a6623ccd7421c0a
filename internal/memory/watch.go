package memory

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the journal file for writes made by another process
// sharing this workspace and resyncs the query cache in response,
// keeping it from lagging indefinitely between explicit Sync calls.
type Watcher struct {
	fsw    *fsnotify.Watcher
	mem    *Memory
	onSync func(error)
	done   chan struct{}
}

// WatchJournal starts watching the journal's parent directory (the file
// itself may not exist yet, and fsnotify cannot watch a path that
// hasn't been created) for writes and renames and calls
// Memory.SyncFromJournal whenever the journal file changes. onSync, if
// non-nil, is invoked with the result of every sync attempt.
func (m *Memory) WatchJournal(onSync func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(m.journal.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, mem: m, onSync: onSync, done: make(chan struct{})}
	go w.loop(filepath.Base(m.journal.path))
	return w, nil
}

func (w *Watcher) loop(journalName string) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != journalName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			err := w.mem.SyncFromJournal()
			if w.onSync != nil {
				w.onSync(err)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
