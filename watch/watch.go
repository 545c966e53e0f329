// Package watch provides a "watch a directory, detect new PDFs, debounce,
// trigger" loop for daemon mode. A burst of downloaded files produces a
// single trigger once the directory has been quiet for the debounce
// window.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after the last new PDF before the
	// action fires. More files arriving during the window reset the
	// timer. Default: 2s.
	Debounce time.Duration

	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher monitors a PDF directory tree and runs an action when new
// documents appear.
type Watcher struct {
	dir  string
	opts Options
}

// New creates a Watcher for dir. The directory does not have to exist
// yet; Run fails if it is still missing when started.
func New(dir string, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{dir: dir, opts: opts}
}

// Run watches until ctx is cancelled, invoking action after each
// debounced burst of new PDFs. Subdirectories created while running are
// picked up, so per-company folders added by the download stage are
// covered.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addTree(fw, w.dir); err != nil {
		return err
	}

	// The timer starts disarmed; pending gates its channel.
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if isDir(evt.Name) {
				if err := addTree(fw, evt.Name); err != nil {
					w.opts.Logger.Warn("watch new directory failed", "dir", evt.Name, "error", err)
				}
				continue
			}
			if !isPDF(evt.Name) {
				continue
			}
			w.opts.Logger.Debug("new pdf observed", "path", evt.Name)
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			timer.Reset(w.opts.Debounce)
			pending = true

		case <-timer.C:
			pending = false
			w.opts.Logger.Info("pdf burst settled, triggering analysis", "dir", w.dir)
			if err := action(ctx); err != nil {
				w.opts.Logger.Error("watch action failed", "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("watcher error", "error", err)
		}
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// addTree registers dir and every subdirectory below it.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
