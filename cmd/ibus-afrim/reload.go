package main

import (
	"log/slog"
	"sync"
	"time"

	"ibusafrim/internal/composer"
	"ibusafrim/internal/config"
	"ibusafrim/internal/metrics"
)

// dictionaryReloader keeps a composer.Source in step with the dictionary
// file and with the dictionary section of the configuration.
type dictionaryReloader struct {
	src     *composer.Source
	metrics *metrics.EngineMetrics
	logger  *slog.Logger

	mu      sync.Mutex
	applied bool
	path    string
	watch   bool
	watcher *config.Watcher
}

func newDictionaryReloader(src *composer.Source, m *metrics.EngineMetrics, logger *slog.Logger) *dictionaryReloader {
	return &dictionaryReloader{src: src, metrics: m, logger: logger}
}

// Apply loads the configured dictionary and (re)starts the file watcher
// when the path or the watch flag changed. A dictionary that fails to
// load leaves the current one in place.
func (r *dictionaryReloader) Apply(dc config.DictionaryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.applied && dc.Path == r.path && dc.Watch == r.watch {
		return
	}
	if !r.applied || dc.Path != r.path {
		r.load(dc.Path)
	}
	r.applied = true
	r.path, r.watch = dc.Path, dc.Watch
	r.restartWatcher()
}

// Reload re-reads the current dictionary file.
func (r *dictionaryReloader) Reload() {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()
	r.load(path)
}

func (r *dictionaryReloader) load(path string) {
	start := time.Now()
	err := r.src.Open(path)
	r.metrics.RecordReload(start, err)
	if err != nil {
		r.logger.Warn("dictionary not loaded, keeping the current one", "path", path, "error", err)
	}
}

func (r *dictionaryReloader) restartWatcher() {
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	if !r.watch || r.path == "" {
		return
	}

	w, err := config.NewWatcher(r.Reload, r.path)
	if err != nil {
		r.logger.Warn("dictionary changes will not be picked up", "path", r.path, "error", err)
		return
	}
	go func() {
		for err := range w.Errors() {
			r.logger.Warn("dictionary watcher", "error", err)
		}
	}()
	r.watcher = w
}

// Close stops watching.
func (r *dictionaryReloader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
}
