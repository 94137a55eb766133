package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Poster delivers a function onto the compositor's event loop. The
// callbacks of a Watcher run through it so reloads observe the same
// single-threaded discipline as everything else.
type Poster interface {
	Post(fn func())
}

// Watcher re-parses a configuration file whenever it changes.
type Watcher struct {
	w   *fsnotify.Watcher
	log *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Watch reloads path on every write and posts each valid new Config to
// onReload. A rewrite that fails to parse or validate keeps the
// running configuration and is logged. Close stops the watcher.
func Watch(path string, post Poster, onReload func(Config), log *slog.Logger) (*Watcher, error) {
	if post == nil {
		return nil, errors.New("config: watch needs a poster")
	}
	if onReload == nil {
		return nil, errors.New("config: watch needs a reload callback")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace the file on
	// save and a watch on the old inode goes quiet after the rename.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}
	w := &Watcher{w: fsw, log: log, done: make(chan struct{})}
	go w.run(path, post, onReload)
	w.log.Debug("config watcher started", "path", path)
	return w, nil
}

func (w *Watcher) run(path string, post Poster, onReload func(Config)) {
	base := filepath.Base(path)
	for {
		select {
		case e, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Base(e.Name) != base {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				w.log.Warn("config reload rejected", "path", path, "error", err)
				continue
			}
			w.log.Info("config reloaded", "path", path)
			post.Post(func() { onReload(cfg) })

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher. Reloads already posted still run.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.w.Close()
	})
	return err
}
