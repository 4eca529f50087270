package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watch runs fn once and again whenever the program or the config file is
// written, until ctx is done. Parent directories are watched so editors
// that replace files by rename are still seen.
func (a *app) watch(ctx context.Context, path string, fn func(context.Context, string) error) error {
	logger := a.logger.Named("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	targets := map[string]bool{}
	for _, p := range []string{path, a.configPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		targets[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	rerun := func() {
		if err := fn(ctx, path); err != nil {
			logger.Error("run failed", "error", err)
		}
	}
	rerun()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				logger.Info("change detected", "file", event.Name)
				if err := a.loadConfig(); err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				rerun()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}
