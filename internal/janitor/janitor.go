// Package janitor runs the background cache-eviction loop: age bounds,
// size bounds, and orphan cleanup over the KV-file directory and the
// metadata directory.
package janitor

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dingausmwald/proxycache/internal/lcpindex"
	"github.com/dingausmwald/proxycache/internal/metastore"
	"github.com/dingausmwald/proxycache/internal/stats"
)

// Config carries the size/age bounds from section 6.
type Config struct {
	CacheDir        string
	MaxAgeHours     int   // 0 disables age-based eviction
	MaxSizeBytes    int64
	TickInterval    time.Duration
}

// Janitor owns the ticker loop.
type Janitor struct {
	cfg    Config
	meta   *metastore.Store
	index  *lcpindex.Index
	logger zerolog.Logger
	done   chan struct{}
	stats  *stats.Counters
}

func New(cfg Config, meta *metastore.Store, index *lcpindex.Index, logger zerolog.Logger) *Janitor {
	return &Janitor{cfg: cfg, meta: meta, index: index, logger: logger, done: make(chan struct{})}
}

// SetStats attaches a counters sink. Optional.
func (j *Janitor) SetStats(s *stats.Counters) { j.stats = s }

// Start runs the ticker loop in a goroutine until Stop is called. Each tick
// is wrapped in panic recovery so one bad pass never takes the process down.
func (j *Janitor) Start() {
	go func() {
		ticker := time.NewTicker(j.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.runTickSafely()
			case <-j.done:
				return
			}
		}
	}()
}

func (j *Janitor) Stop() {
	close(j.done)
}

func (j *Janitor) runTickSafely() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error().Interface("panic", r).Msg("janitor: recovered from panic during tick")
		}
	}()
	j.Tick()
}

// Tick runs one full pass: age, size, then orphans. Exported so tests (and
// S6-style scenarios) can drive it synchronously without waiting on the
// ticker.
func (j *Janitor) Tick() {
	entries := j.meta.List()
	kvFiles := j.listKVFiles()

	if j.cfg.MaxAgeHours > 0 {
		j.agePass(entries, kvFiles)
		entries = j.meta.List()
		kvFiles = j.listKVFiles()
	}

	j.sizePass(entries, kvFiles)
	entries = j.meta.List()
	kvFiles = j.listKVFiles()

	j.orphanPass(entries, kvFiles)
}

func (j *Janitor) agePass(entries []metastore.Entry, kvFiles map[string]kvFile) {
	cutoff := time.Now().Add(-time.Duration(j.cfg.MaxAgeHours) * time.Hour)
	for _, e := range entries {
		lastUsed := e.LastUsedAt
		if lastUsed.IsZero() {
			if f, ok := kvFiles[e.SaveID]; ok {
				lastUsed = f.modTime
			}
		}
		if lastUsed.Before(cutoff) {
			j.evict(e.SaveID, e.Model, kvFiles)
		}
	}
}

func (j *Janitor) sizePass(entries []metastore.Entry, kvFiles map[string]kvFile) {
	var total int64
	for _, f := range kvFiles {
		total += f.size
	}
	if total <= j.cfg.MaxSizeBytes {
		return
	}

	byAge := make([]metastore.Entry, len(entries))
	copy(byAge, entries)
	sort.Slice(byAge, func(i, k int) bool {
		return byAge[i].LastUsedAt.Before(byAge[k].LastUsedAt)
	})

	for _, e := range byAge {
		if total <= j.cfg.MaxSizeBytes {
			break
		}
		if f, ok := kvFiles[e.SaveID]; ok {
			total -= f.size
		}
		j.evict(e.SaveID, e.Model, kvFiles)
	}
}

func (j *Janitor) orphanPass(entries []metastore.Entry, kvFiles map[string]kvFile) {
	withMeta := make(map[string]bool, len(entries))
	for _, e := range entries {
		withMeta[e.SaveID] = true
		if _, ok := kvFiles[e.SaveID]; !ok {
			// Orphan metadata: no KV file. Model unknown to this pass unless
			// already in entries, which it is.
			if err := j.meta.Delete(e.SaveID); err != nil {
				j.logger.Warn().Err(err).Str("save_id", e.SaveID).Msg("janitor: failed to delete orphan metadata")
				continue
			}
			j.index.Remove(e.Model, e.SaveID)
		}
	}
	for saveID, f := range kvFiles {
		if !withMeta[saveID] {
			if err := os.Remove(f.path); err != nil {
				j.logger.Warn().Err(err).Str("save_id", saveID).Msg("janitor: failed to delete orphan KV file")
			}
		}
	}
}

func (j *Janitor) evict(saveID, model string, kvFiles map[string]kvFile) {
	if f, ok := kvFiles[saveID]; ok {
		if err := os.Remove(f.path); err != nil {
			j.logger.Warn().Err(err).Str("save_id", saveID).Msg("janitor: failed to delete KV file")
		}
	}
	if err := j.meta.Delete(saveID); err != nil {
		j.logger.Warn().Err(err).Str("save_id", saveID).Msg("janitor: failed to delete metadata")
	}
	j.index.Remove(model, saveID)
	if j.stats != nil {
		j.stats.IncEviction()
	}
}

type kvFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (j *Janitor) listKVFiles() map[string]kvFile {
	out := make(map[string]kvFile)
	entries, err := os.ReadDir(j.cfg.CacheDir)
	if err != nil {
		j.logger.Warn().Err(err).Str("dir", j.cfg.CacheDir).Msg("janitor: failed to enumerate cache dir")
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		saveID := saveIDFromFilename(e.Name())
		out[saveID] = kvFile{path: filepath.Join(j.cfg.CacheDir, e.Name()), size: info.Size(), modTime: info.ModTime()}
	}
	return out
}

// saveIDFromFilename strips a backend-defined suffix, e.g. "<save_id>.bin",
// to recover the save id used as the join key against metadata.
func saveIDFromFilename(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}
