package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/litlink/internal/storage"
)

// Change kinds reported to a ChangeFunc.
const (
	ChangeIndexed = "indexed"
	ChangeRemoved = "removed"
)

// ChangeFunc is called after each watcher-driven cache mutation.
type ChangeFunc func(kind, path string)

const defaultDebounce = 200 * time.Millisecond

// Watcher keeps the cache in step with the vault while it runs.
type Watcher struct {
	db       Cache
	store    storage.Provider
	root     string
	logger   *slog.Logger
	onChange ChangeFunc
	debounce time.Duration
}

// NewWatcher returns a watcher for the vault rooted at root. onChange may
// be nil.
func NewWatcher(db Cache, store storage.Provider, root string, logger *slog.Logger, onChange ChangeFunc) *Watcher {
	return &Watcher{
		db:       db,
		store:    store,
		root:     root,
		logger:   logger,
		onChange: onChange,
		debounce: defaultDebounce,
	}
}

// Run processes file system events until ctx is cancelled.
//
// Directories created at runtime are added to the watch list. fsnotify
// reports a rename only on the old path, so renames drop the old entry and
// schedule a debounced reconciliation that picks up the new one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addDirsRecursive(fw, ev.Name); err != nil {
						w.logger.Warn("watcher: add dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
					// Files may land before the directory watch is in place.
					schedule()
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				w.index(rel)
			case ev.Has(fsnotify.Remove):
				w.remove(rel)
			case ev.Has(fsnotify.Rename):
				w.remove(rel)
				schedule()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) index(rel string) {
	data, err := w.store.Read(rel)
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if err := w.db.IndexFile(rel, data); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel))
	w.notify(ChangeIndexed, rel)
}

func (w *Watcher) remove(rel string) {
	if err := w.db.DeleteNote(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: removed", slog.String("path", rel))
	w.notify(ChangeRemoved, rel)
}

// reconcile drops cache entries without a file and indexes files whose
// checksum differs from the cached one.
func (w *Watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs {
			w.index(p)
		}
	}
}

func (w *Watcher) notify(kind, rel string) {
	if w.onChange != nil {
		w.onChange(kind, rel)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
