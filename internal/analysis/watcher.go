package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher feeds on-disk Pike source changes into the Invalidator. It
// watches directories recursively; fsnotify reports changes to the files
// within them.
type Watcher struct {
	fsw    *fsnotify.Watcher
	inv    *Invalidator
	logger *zap.Logger

	// extensions of files worth invalidating for, e.g. ".pike".
	extensions map[string]struct{}

	closeOnce sync.Once
	closed    chan struct{}
	doneWg    sync.WaitGroup
}

// NewWatcher creates a watcher over the given invalidator. extensions
// defaults to Pike source suffixes when empty.
func NewWatcher(inv *Invalidator, extensions []string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(extensions) == 0 {
		extensions = []string{".pike", ".pmod", ".h"}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:        fsw,
		inv:        inv,
		logger:     logger,
		extensions: make(map[string]struct{}, len(extensions)),
		closed:     make(chan struct{}),
	}
	for _, ext := range extensions {
		w.extensions[strings.ToLower(ext)] = struct{}{}
	}

	w.doneWg.Add(1)
	go w.processLoop()

	return w, nil
}

// AddRecursive watches root and every subdirectory beneath it. Hidden
// directories are skipped.
func (w *Watcher) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if base := filepath.Base(path); strings.HasPrefix(base, ".") && path != abs {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("watch directory failed",
				zap.String("path", path), zap.Error(addErr))
		}
		return nil
	})
}

// processLoop converts fsnotify events into invalidations.
func (w *Watcher) processLoop() {
	defer w.doneWg.Done()

	for {
		select {
		case <-w.closed:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories join the watch so files created inside them are
	// seen too.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if _, ok := w.extensions[ext]; !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.logger.Debug("source removed on disk", zap.String("path", event.Name))
		w.inv.FileRemoved(event.Name)
	case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
		w.logger.Debug("source changed on disk", zap.String("path", event.Name))
		w.inv.FileChanged(event.Name)
	}
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.fsw.Close()
		w.doneWg.Wait()
	})
	return err
}
