package credentials

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with freshly loaded credentials every time credentials.toml
// is written, created or removed, until ctx is done. A removed file is
// reported as empty credentials. Watch blocks; run it in its own goroutine.
//
// The containing directory is watched rather than the file so that a file
// created after Watch starts, or renamed into place by Save, is still seen.
func (m *Manager) Watch(ctx context.Context, fn func(*Credentials)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating credentials watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(m.targetPath)); err != nil {
		return fmt.Errorf("watching credentials dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.targetPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			creds, err := m.Load()
			if err != nil {
				// Save replaces the file by rename, so this is a file written
				// by something else; wait for the next event.
				continue
			}
			fn(creds)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("credentials watcher error: %w", err)
		}
	}
}
