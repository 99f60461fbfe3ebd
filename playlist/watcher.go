package playlist

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"playd/logger"
)

// Watch reports writes to the seed playlist at path by calling onChange
// from the watcher goroutine until ctx is cancelled. The parent directory
// is watched so editors that replace the file atomically are still seen.
func Watch(ctx context.Context, path string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Info("seed playlist changed", logger.String("path", path))
					onChange(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("playlist watcher error", logger.ErrorField(err))
			}
		}
	}()

	return nil
}
