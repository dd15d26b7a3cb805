// Package watcher implements the development-mode incremental rebuild path
// from spec §4.6: a working tree is observed for changes, a revision
// candidate is rebuilt, and a hook fires so a live-reload channel can tell
// connected browsers about it. Production origins never run this; it is a
// `cub`-in-development-mode-only component.
package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"home.systems/common"
)

var logger = common.ServiceLogger("watcher", "")

// debounceWindow coalesces a burst of filesystem events (a save in an
// editor frequently produces a write plus a rename plus a chmod) into one
// rebuild, per spec's ~50ms debounce.
const debounceWindow = 50 * time.Millisecond

// RebuildFunc rebuilds a revision candidate from root and reports whether
// it succeeded; a non-nil error is surfaced to live-reload as a build_error
// message rather than swapped in.
type RebuildFunc func(root string) error

// Watcher observes root for changes and debounces them into RebuildFunc
// calls.
type Watcher struct {
	root    string
	rebuild RebuildFunc
	fsw     *fsnotify.Watcher
}

// New creates a Watcher over root. It does not start watching until Run is
// called.
func New(root string, rebuild RebuildFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, rebuild: rebuild, fsw: fsw}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers every directory under root with fsnotify. fsnotify has
// no recursive-watch mode, so new directories created after Run has
// started are picked up reactively in Run's event loop.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run blocks, debouncing filesystem events into rebuild calls, until done
// is closed or the fsnotify event or error channel closes.
func (w *Watcher) Run(done <-chan struct{}) {
	defer w.fsw.Close()

	var timer *time.Timer
	pending := false

	fire := func() {
		pending = false
		if err := w.rebuild(w.root); err != nil {
			logger.WithField("root", w.root).WithError(err).Error("rebuild failed")
		}
	}

	for {
		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(ev.Name)
				}
			}
			if !pending {
				pending = true
				timer = time.AfterFunc(debounceWindow, fire)
			} else if timer != nil {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("fsnotify error")
		}
	}
}
