// Package watch implements incremental re-ingestion triggered by filesystem
// events, grounded on the teacher's MangleWatcher
// (internal/core/mangle_watcher.go): an fsnotify watcher over a directory
// tree, debounced so a burst of saves collapses into one re-ingest.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"parseltongue/internal/adapter"
	"parseltongue/internal/ingest"
	"parseltongue/internal/plog"
)

// Watcher re-runs an ingestion pipeline over root whenever a recognized
// source file under it changes, debounced by Debounce.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pipeline *ingest.Pipeline
	registry *adapter.Registry
	root     string
	opts     ingest.Options
	Debounce time.Duration

	pending map[string]time.Time
	onRun   func(*ingest.Report, error)
}

// New builds a watcher over root. onRun, if non-nil, is called after every
// re-ingestion triggered by a filesystem event (including failed ones).
func New(pipeline *ingest.Pipeline, registry *adapter.Registry, root string, opts ingest.Options, onRun func(*ingest.Report, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		pipeline: pipeline,
		registry: registry,
		root:     root,
		opts:     opts,
		Debounce: 300 * time.Millisecond,
		pending:  make(map[string]time.Time),
		onRun:    onRun,
	}, nil
}

// Run adds root (and every directory beneath it) to the watch list and
// blocks, re-ingesting on settled file-change bursts, until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	defer w.watcher.Close()

	ticker := time.NewTicker(w.Debounce)
	defer ticker.Stop()

	log := plog.Get(plog.CategoryWatch)
	log.Info("watching %s for changes", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error: %v", err)
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if filepath.Base(path) == ".git" {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// fsnotify does not watch subdirectories recursively: a directory
			// created after Run started (e.g. a new package) is invisible to
			// it until something explicitly adds it, so a file later written
			// inside it would otherwise never produce an event at all.
			if err := w.addTree(event.Name); err != nil {
				plog.Get(plog.CategoryWatch).Warn("watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if w.registry.For(filepath.Ext(event.Name)) == nil {
		return
	}
	switch {
	case event.Op&fsnotify.Write != 0, event.Op&fsnotify.Create != 0, event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
	default:
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled fires a re-ingest only once the whole pending burst has
// gone quiet for Debounce — it waits on the most recent pending event, not
// the oldest. Firing on the oldest would let one long-pending file trigger
// a re-ingest while another file in the same burst is still mid-write,
// reading it truncated.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	var mostRecent time.Time
	for _, t := range w.pending {
		if t.After(mostRecent) {
			mostRecent = t
		}
	}
	if time.Since(mostRecent) < w.Debounce {
		w.mu.Unlock()
		return
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	report, err := w.pipeline.Ingest(ctx, w.root, w.opts)
	if err != nil {
		plog.Get(plog.CategoryWatch).Warn("re-ingest failed: %v", err)
	}
	if w.onRun != nil {
		w.onRun(report, err)
	}
}
