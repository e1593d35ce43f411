package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watch prints the schema of the declarations and prints it again after
// every change of the file, until ctx is done. Reload errors are logged and
// the previous output stays current.
func (c *command) watch(ctx context.Context, name string) error {
	w, err := newWatcher(c.path)
	if err != nil {
		return err
	}
	defer w.Close()
	reload := func() {
		if err := c.schema(name); err != nil {
			c.logger.Error("graphsync: reload failed", "path", c.path, "error", err)
			return
		}
		c.logger.Info("graphsync: reloaded", "path", c.path)
	}
	reload()
	return watchLoop(ctx, w, c.path, reload)
}

// newWatcher watches the directory of path. Editors commonly replace files
// by renaming, which drops a watch on the file itself.
func newWatcher(path string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return w, nil
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, path string, reload func()) error {
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}
