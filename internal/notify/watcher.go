package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dbsmedya/gocontacts/internal/logger"
)

// DefaultDebounce is the quiet period a FileWatcher waits before publishing.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher turns writes to a SQLite database file, its journal or its
// write-ahead log into debounced Change signals.
type FileWatcher struct {
	path     string
	debounce time.Duration
	pub      Publisher
	logger   *logger.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher watches the directory holding path. The directory is
// watched rather than the file so that recreated files are still seen.
func NewFileWatcher(path string, debounce time.Duration, pub Publisher, log *logger.Logger) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.NewDefault()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		path:     abs,
		debounce: debounce,
		pub:      pub,
		logger:   log.WithComponent("watcher"),
		watcher:  w,
	}, nil
}

// Matches reports whether name is the database file or one of its
// companion files.
func (fw *FileWatcher) Matches(name string) bool {
	name = filepath.Clean(name)
	if name == fw.path {
		return true
	}
	return name == fw.path+"-wal" || name == fw.path+"-journal"
}

// Run forwards events until ctx is done or the watcher fails, then closes
// the watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if !fw.Matches(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				fw.schedule()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warnf("File watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Reset(fw.debounce)
		return
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		fw.pub.Publish(Change)
	})
}

func (fw *FileWatcher) close() {
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	if err := fw.watcher.Close(); err != nil {
		fw.logger.Debugf("Failed to close file watcher: %v", err)
	}
}
