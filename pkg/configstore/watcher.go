package configstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever the file-backed defaults source
// changes on disk. It blocks until ctx is done. Watching the parent
// directory catches editors that replace the file instead of writing
// in place.
func (s *Store) Watch(ctx context.Context) error {
	if s.source == nil || s.source.Path() == "" {
		return fmt.Errorf("no file-backed defaults source to watch")
	}
	path, err := filepath.Abs(s.source.Path())
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	s.logger.Info().Str("path", path).Msg("watching defaults file")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reload after defaults change failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("defaults watcher error")
		}
	}
}
