package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// WatchRuntimeConfig watches path's directory for writes to path and calls
// onChange with a freshly loaded RuntimeConfig after each debounced
// change. Blocks until ctx is cancelled; a reload error is logged and
// skipped rather than stopping the watch, so one bad edit doesn't end
// hot-reload for the process (matching the file provider's watch loop).
func WatchRuntimeConfig(ctx context.Context, logger *slog.Logger, path string, onChange func(*RuntimeConfig)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve watch path: %w", err)
	}
	dir := filepath.Dir(absPath)
	base := filepath.Base(absPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)

		case <-reload:
			cfg, err := LoadRuntimeConfig(absPath)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", absPath, "error", err)
				continue
			}
			onChange(cfg)
		}
	}
}
