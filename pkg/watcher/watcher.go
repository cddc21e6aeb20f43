// Package watcher implements the Watcher & Event Router: a debounced
// fsnotify recursive directory watch that filters to compilable
// extensions and dispatches changes to the Compile Orchestrator and then
// the HMR Dependency Tracker.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/orchestrator"
)

// watchedExtensions is the filter from spec.md §4.6: "Filters to .ts,
// .sfc, .js". ".vue" is accepted alongside ".sfc" for the same reason
// pkg/sourcefile.IsSFC recognizes both.
var watchedExtensions = map[string]bool{
	".ts":  true,
	".sfc": true,
	".vue": true,
	".js":  true,
	".css": true,
}

// Config controls debounce granularity and ignored directories.
type Config struct {
	Root            string
	DebounceWindow  time.Duration // default 500ms
	IgnoredDirGlobs []string      // e.g. "**/node_modules", "**/.git"
}

// DefaultConfig returns the default debounce window plus the conventional
// VCS/dependency directory exclusions.
func DefaultConfig(root string) Config {
	return Config{
		Root:           root,
		DebounceWindow: 500 * time.Millisecond,
		IgnoredDirGlobs: []string{
			"**/.git",
			"**/.git/**",
			"**/node_modules",
			"**/node_modules/**",
		},
	}
}

// Watcher recursively watches Config.Root and routes debounced,
// extension-filtered change batches to the Orchestrator and HMR Tracker.
type Watcher struct {
	cfg          Config
	logger       *slog.Logger
	fsWatch      *fsnotify.Watcher
	orchestrator *orchestrator.Orchestrator
	tracker      *hmr.Tracker

	watchedDirs sync.Map

	debouncer *Debouncer
}

// New creates a Watcher rooted at cfg.Root and registers its
// subdirectories with fsnotify.
func New(cfg Config, orch *orchestrator.Orchestrator, tracker *hmr.Tracker, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 500 * time.Millisecond
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:          cfg,
		logger:       logger,
		fsWatch:      fsWatch,
		orchestrator: orch,
		tracker:      tracker,
	}
	w.debouncer = NewDebouncer(cfg.DebounceWindow, w.handleBatch)

	if err := w.addDir(cfg.Root); err != nil {
		fsWatch.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if w.isIgnoredDir(path) {
			return filepath.SkipDir
		}
		abs := filepath.ToSlash(path)
		if _, exists := w.watchedDirs.Load(abs); exists {
			return nil
		}
		if err := w.fsWatch.Add(path); err != nil {
			return err
		}
		w.watchedDirs.Store(abs, true)
		return nil
	})
}

func (w *Watcher) isIgnoredDir(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range w.cfg.IgnoredDirGlobs {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if strings.HasSuffix(slashed, strings.TrimSuffix(strings.TrimSuffix(pattern, "/**"), "**")) {
			return true
		}
	}
	return false
}

func (w *Watcher) isWatchedFile(path string) bool {
	return watchedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Run consumes fsnotify events until ctx is cancelled, handling the
// SIGINT contract's "close the watcher" step by returning when ctx is
// done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debouncer.Stop()
	for {
		select {
		case <-ctx.Done():
			return w.fsWatch.Close()
		case evt, ok := <-w.fsWatch.Events:
			if !ok {
				return nil
			}
			w.onEvent(evt)
		case err, ok := <-w.fsWatch.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher.fsnotify_error", "error", err)
		}
	}
}

func (w *Watcher) onEvent(evt fsnotify.Event) {
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			w.addDir(evt.Name)
			return
		}
	}
	if !w.isWatchedFile(evt.Name) {
		return
	}
	w.debouncer.Add(evt)
}

// handleBatch is the Debouncer's callback: it dispatches each changed
// file to the Orchestrator, then the HMR Tracker, per spec.md §4.6's
// "On add/change, dispatches to the Orchestrator and then to the HMR
// Tracker."
func (w *Watcher) handleBatch(events []fsnotify.Event) {
	seen := make(map[string]fsnotify.Event, len(events))
	for _, e := range events {
		seen[e.Name] = e // last event per path wins within the debounce window
	}

	for path, evt := range seen {
		switch {
		case evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename):
			w.tracker.Purge(path)
			w.orchestrator.DeleteOutput(path)
			w.logger.Info("watcher.delete", "path", path)
		case evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create):
			w.tracker.Purge(path) // purge before recompile so stale placeholders are never served
			result := w.orchestrator.CompileFile(context.Background(), path)
			if result.Err != nil {
				w.logger.Error("watcher.compile_failed", "path", path, "error", result.Err)
				continue
			}
			if result.Skipped {
				continue
			}
			isCSS := strings.EqualFold(filepath.Ext(path), ".css")
			hmrEvents := w.tracker.OnFileChanged(path, result.DestPath, isCSS)
			for _, ev := range hmrEvents {
				w.logger.Info("watcher.hmr_event", "kind", ev.Kind, "path", ev.Path)
			}
		}
	}
}
