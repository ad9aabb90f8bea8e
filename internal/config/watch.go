package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SelectorWatcher reloads the selector file into a store whenever it changes
type SelectorWatcher struct {
	path   string
	store  *SelectorStore
	logger zerolog.Logger
}

// NewSelectorWatcher creates a watcher for path feeding store
func NewSelectorWatcher(path string, store *SelectorStore) *SelectorWatcher {
	return &SelectorWatcher{
		path:   path,
		store:  store,
		logger: log.With().Str("component", "selectors").Logger(),
	}
}

// Run blocks until ctx is done. The parent directory is watched so editors
// that replace the file atomically are still picked up.
func (w *SelectorWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info().Str("path", w.path).Msg("👀 Watching selector file")

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Selector watcher error")
		}
	}
}

func (w *SelectorWatcher) reload() {
	sel, err := LoadSelectors(w.path)
	if err != nil {
		// keep the previous set; a half-written file is common mid-save
		w.logger.Warn().Err(err).Msg("⚠️ Selector reload failed, keeping previous set")
		return
	}
	w.store.Replace(sel)
	w.logger.Info().Int("controls", len(sel.Controls)).Msg("🔄 Selectors reloaded")
}
