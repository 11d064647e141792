package slotd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/danmuck/msgslot/internal/config"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads a DeviceTable when its config file changes.
type Watcher struct {
	path    string
	table   *DeviceTable
	watcher *fsnotify.Watcher
	// reloaded is signalled after every reload attempt; tests hook it.
	reloaded func(error)
}

// NewWatcher watches the directory holding path so editors that replace
// the file are still observed.
func NewWatcher(path string, table *DeviceTable) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}
	return &Watcher{path: abs, table: table, watcher: fw}, nil
}

// Run applies reloads until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	log.Info().Str("path", w.path).Msg("slotd watching config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			err := w.Reload()
			if w.reloaded != nil {
				w.reloaded(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("path", w.path).Msg("slotd config watcher")
		}
	}
}

// Reload re-reads the config file and swaps the device table. An invalid
// file leaves the current table in place.
func (w *Watcher) Reload() error {
	cfg, err := config.LoadDaemonConfig(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("slotd config reload rejected")
		return err
	}
	w.table.Replace(config.DeviceTable(cfg.Devices))
	log.Info().Str("path", w.path).Int("devices", len(cfg.Devices)).Msg("slotd device table reloaded")
	return nil
}
