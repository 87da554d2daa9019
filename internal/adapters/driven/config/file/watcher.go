package file

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/sams-labs/synckit/internal/logger"
)

// Watch re-reads the config whenever the file changes and delivers the
// fresh settings on the returned channel until ctx is cancelled. The
// parent directory is watched rather than the file itself so atomic
// rename-style saves (including our own Save) are observed.
func (s *Store) Watch(ctx context.Context) (<-chan Settings, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	out := make(chan Settings, 1)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := s.Load()
				if err != nil {
					logger.Warn("Ignoring config change: %v", err)
					continue
				}
				// Latest-wins: drop a stale undelivered reload.
				select {
				case <-out:
				default:
				}
				out <- cfg
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error: %v", err)
			}
		}
	}()
	return out, nil
}
