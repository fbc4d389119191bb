package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// OnReload is called after a successful hot-reload.
type OnReload func(old, new *Config)

// Watcher monitors the config file for changes and reloads the
// hot-reloadable subset automatically: lcp_th, cache_max_age_hours,
// cache_max_size_gb, cache_cleanup_interval_minutes. Every other field
// requires a process restart; a changed value there is logged but ignored.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	filePath  string
	callbacks []OnReload
	mu        sync.Mutex
	done      chan struct{}
	logger    zerolog.Logger
}

// Watch starts watching filePath's containing directory (editors do
// write-tmp-then-rename, which changes the inode; watching the directory
// catches renames that watching the file itself would miss).
func Watch(filePath string, logger zerolog.Logger) (*Watcher, error) {
	if filePath == "" {
		return nil, fmt.Errorf("config watcher: file path must not be empty")
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("config watcher: resolving path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watching directory %s: %w", dir, err)
	}

	w := &Watcher{fsWatcher: fsw, filePath: absPath, done: make(chan struct{}), logger: logger}
	go w.loop()
	return w, nil
}

func (w *Watcher) OnChange(fn OnReload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			isWrite := event.Op&fsnotify.Write != 0
			isCreate := event.Op&fsnotify.Create != 0
			isRename := event.Op&fsnotify.Rename != 0
			if !isWrite && !isCreate && !isRename {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config watcher: fsnotify error")
		}
	}
}

func (w *Watcher) reload() {
	old := Current()

	newCfg, err := Load(w.filePath)
	if err != nil {
		w.logger.Warn().Err(err).Msg("config watcher: reload failed, keeping previous config")
		return
	}

	if old != nil {
		merged := *old
		merged.LCPThreshold = newCfg.LCPThreshold
		merged.CacheMaxAgeHours = newCfg.CacheMaxAgeHours
		merged.CacheMaxSizeGB = newCfg.CacheMaxSizeGB
		merged.CacheCleanupIntervalMinutes = newCfg.CacheCleanupIntervalMinutes
		logIgnoredChanges(w.logger, old, newCfg)
		newCfg = &merged
	}

	Set(newCfg)
	w.logger.Info().Str("file", w.filePath).Msg("config watcher: reloaded hot-reloadable settings")

	w.mu.Lock()
	cbs := make([]OnReload, len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error().Interface("panic", r).Msg("config watcher: callback panicked")
				}
			}()
			cb(old, newCfg)
		}()
	}
}

// logIgnoredChanges warns when a reloaded file changes a field that
// requires a restart to take effect, so operators aren't surprised that a
// port or directory change didn't apply live.
func logIgnoredChanges(logger zerolog.Logger, old, reloaded *Config) {
	if old.LlamaURL != reloaded.LlamaURL || old.NSlots != reloaded.NSlots || old.Port != reloaded.Port ||
		old.MetaDir != reloaded.MetaDir || old.CacheDir != reloaded.CacheDir ||
		old.WordsPerBlock != reloaded.WordsPerBlock || old.BigThresholdWords != reloaded.BigThresholdWords {
		logger.Warn().Msg("config watcher: file changed a restart-only setting; ignoring until next restart")
	}
}
