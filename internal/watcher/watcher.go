package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to the files of a definition directory.
type Watcher struct {
	dir    string
	ignore []string
	log    *scribe.Scribe
	fs     *fsnotify.Watcher
}

// New watches dir. Changes to files matching one of the ignore patterns, or to
// hidden files, are not reported. Patterns use doublestar syntax and are
// matched against the path relative to dir.
func New(dir string, ignore []string, log *scribe.Scribe) (*Watcher, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("error watching %s: %w", dir, err)
	}

	return &Watcher{dir: dir, ignore: ignore, log: log, fs: fw}, nil
}

// Ignored reports whether a change to name should be dropped.
func (w *Watcher) Ignored(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return true
	}

	rel, err := filepath.Rel(w.dir, name)
	if err != nil {
		rel = name
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Run forwards relevant changes to notify until ctx is done or the watcher
// is closed.
func (w *Watcher) Run(ctx context.Context, notify func(name string)) {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.Ignored(ev.Name) {
				w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Ignoring change")
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && ev.Name == w.dir {
				go w.rewatch()
			}

			w.log.Info().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Definition change detected")
			notify(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error().AnErr("error", err).Msg("Watch error")
		}
	}
}

// rewatch re-adds the directory after it was moved or recreated.
func (w *Watcher) rewatch() {
	for i := 0; i < 5; i++ {
		err := w.fs.Add(w.dir)
		if err == nil {
			return
		}
		if !os.IsNotExist(err) {
			w.log.Error().Str("dir", w.dir).AnErr("error", err).Msg("Watch re-add failed")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
