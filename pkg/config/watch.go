package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/wavectl/wavectl/pkg/engine"
)

// reloadDebounce coalesces the event bursts editors produce on save.
const reloadDebounce = 500 * time.Millisecond

// Watcher re-runs the registry preflight whenever the file changes.
type Watcher struct {
	loader *Loader
	logger zerolog.Logger
}

// NewWatcher creates a registry watcher.
func NewWatcher(loader *Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		logger: logger.With().Str("component", "registry-watcher").Logger(),
	}
}

// Watch blocks until ctx is cancelled, invoking onResult after every
// change with the reload outcome. The initial load result is delivered
// before the first event.
func (w *Watcher) Watch(ctx context.Context, path string, onResult func(*Registry, []engine.Wave, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	registry, waves, loadErr := w.loader.Load(path)
	onResult(registry, waves, loadErr)

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	w.logger.Info().Str("path", path).Msg("watching registry")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("registry file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDebounce, func() {
				registry, waves, loadErr := w.loader.Load(path)
				if loadErr != nil {
					w.logger.Error().Err(loadErr).Msg("registry reload failed")
				} else {
					w.logger.Info().Msg("registry reloaded")
				}
				onResult(registry, waves, loadErr)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}
