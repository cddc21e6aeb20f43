// Package hmr implements the HMR Dependency Tracker: it remembers each
// single-file component's unresolved import specifiers behind their
// hmr-instrument placeholders, and on a dependency's recompile splices a
// fresh timestamp into the cached component output and emits a wire
// event the dev server forwards to the browser.
package hmr

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kriollo/versacompile/pkg/resolver"
)

// EventKind is one of the three wire-protocol events from spec.md §6.
type EventKind string

const (
	EventCSSReload    EventKind = "css-reload"
	EventModuleUpdate EventKind = "module-update"
	EventSFCUpdate    EventKind = "sfc-update"
)

// Event is the JSON payload pushed to the browser over the dev server's
// event channel.
type Event struct {
	Kind EventKind `json:"kind"`
	Path string    `json:"path,omitempty"`
}

// SFCCacheEntry is one compiled component kept around so its cached JS
// can be patched in place when a dependency changes, instead of forcing
// a full browser reload.
type SFCCacheEntry struct {
	SourcePath string
	OutputPath string
	JS         []byte
	// HMRDeps maps each relative/aliased import specifier the component
	// imports to the unique placeholder token hmr-instrument wrote into
	// JS in its place.
	HMRDeps map[string]string
}

// Tracker owns the SFC cache and the resolve-and-splice logic of
// spec.md §4.5.
type Tracker struct {
	logger     *slog.Logger
	resolver   *resolver.Resolver
	sourceRoot string
	distRoot   string

	mu      sync.Mutex
	entries map[string]SFCCacheEntry
}

// New builds a Tracker. res may be nil if no aliased specifiers are ever
// used by SFCs (pure relative-import projects).
func New(res *resolver.Resolver, sourceRoot, distRoot string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:     logger,
		resolver:   res,
		sourceRoot: sourceRoot,
		distRoot:   distRoot,
		entries:    make(map[string]SFCCacheEntry),
	}
}

// Put stores or replaces the cache entry for one SFC's source path.
func (t *Tracker) Put(sourcePath string, entry SFCCacheEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[sourcePath] = entry
}

// Get returns the cached entry for a source path, used by the dev
// server's HMR interception.
func (t *Tracker) Get(sourcePath string) (SFCCacheEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sourcePath]
	return e, ok
}

// Snapshot returns a copy of every cached entry, used by the dev
// server's HMR interception to find the entry matching an incoming
// request path.
func (t *Tracker) Snapshot() []SFCCacheEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SFCCacheEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// Purge removes one SFC's cache entry, called on unlink or immediately
// before the SFC itself is recompiled so stale placeholders are never
// served.
func (t *Tracker) Purge(sourcePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, sourcePath)
}

// OnFileChanged implements the §4.5 cascade: given F's source and
// output path (after F has already been recompiled), it splices a fresh
// timestamp into any cached SFC whose hmrDeps resolve to F's output
// path, and returns the events to emit (zero or more sfc-update events,
// plus exactly one css-reload or module-update for F itself).
func (t *Tracker) OnFileChanged(sourcePath, outputPath string, isCSS bool) []Event {
	var events []Event

	t.mu.Lock()
	snapshot := make(map[string]SFCCacheEntry, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	t.mu.Unlock()

	for sfcPath, entry := range snapshot {
		for specifier, placeholder := range entry.HMRDeps {
			resolvedSource, ok := t.resolveSpecifier(specifier, sfcPath)
			if !ok {
				continue
			}
			if !t.withinSourceRoot(resolvedSource) {
				continue
			}
			expectedOutput := t.toOutputPath(resolvedSource)
			if expectedOutput != outputPath {
				continue
			}

			patched := bytesReplaceTimestamp(entry.JS, placeholder)
			entry.JS = patched
			t.mu.Lock()
			t.entries[sfcPath] = entry
			t.mu.Unlock()

			events = append(events, Event{Kind: EventSFCUpdate, Path: entry.OutputPath})
			t.logger.Info("hmr.sfc_update", "sfc", sfcPath, "dependency", sourcePath)
		}
	}

	if isCSS {
		events = append(events, Event{Kind: EventCSSReload})
	} else {
		events = append(events, Event{Kind: EventModuleUpdate, Path: outputPath})
	}

	return events
}

// resolveSpecifier resolves specifier against fromSFC's directory if
// relative, or via the resolver's alias/module tables otherwise.
func (t *Tracker) resolveSpecifier(specifier, fromSFC string) (string, bool) {
	if strings.HasPrefix(specifier, ".") {
		return filepath.Clean(filepath.Join(filepath.Dir(fromSFC), specifier)), true
	}
	if t.resolver == nil {
		return "", false
	}
	if out, ok := t.resolver.ResolveAlias(specifier); ok {
		return out, true
	}
	if out, ok := t.resolver.ResolveModule(specifier, fromSFC); ok {
		return out, true
	}
	return "", false
}

func (t *Tracker) withinSourceRoot(path string) bool {
	rel, err := filepath.Rel(t.sourceRoot, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

// toOutputPath replaces the source root with the distribution root and
// rewrites .ts/.sfc to .js, mirroring the Orchestrator's destPathFor.
func (t *Tracker) toOutputPath(sourcePath string) string {
	rel, err := filepath.Rel(t.sourceRoot, sourcePath)
	if err != nil {
		return ""
	}
	ext := filepath.Ext(rel)
	rel = strings.TrimSuffix(rel, ext) + ".js"
	return filepath.Join(t.distRoot, rel)
}

// bytesReplaceTimestamp splices a fresh timestamp into the cached JS in
// place of placeholder, the hmr-instrument stage's unique query token.
func bytesReplaceTimestamp(js []byte, placeholder string) []byte {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	return []byte(strings.ReplaceAll(string(js), placeholder, stamp))
}
