// Package resolver implements the module & alias index: an O(1)
// package/alias lookup layer answering "what file backs this import
// specifier?" for both installed packages and project path aliases.
package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kriollo/versacompile/pkg/cache"
)

// ModuleIndexEntry records one installed package's selected entry point
// and the metadata needed to decide development/browser bias.
type ModuleIndexEntry struct {
	PackageName   string
	RootDir       string
	EntryPath     string
	IsESM         bool
	HasExports    bool
	OptimisedEntry string
	ManifestMTime int64
}

// AliasRule is one compiled `pathsAlias` entry, matched most-specific
// pattern first.
type AliasRule struct {
	Pattern  string
	Targets  []string
	Priority int
	prefix   bool
	base     string
	matcher  *regexp.Regexp
}

// Config controls index build behavior and alias resolution.
// WellKnownRoots and DistRoot are consulted by alias resolution;
// ProductionMode selects the production or development entry bias.
type Config struct {
	PackageStoreDir  string
	SourceRoot       string
	DistRoot         string
	WellKnownRoots   []string
	ProductionMode   bool
	RebuildInterval  time.Duration
	DeniedPackages   []string
}

// DefaultConfig returns the documented defaults, including the open
// question decision on well-known roots.
func DefaultConfig() Config {
	return Config{
		PackageStoreDir: "node_modules",
		SourceRoot:      "src",
		DistRoot:        "dist",
		WellKnownRoots:  []string{"examples", "src", "app", "lib"},
		RebuildInterval: 10 * time.Minute,
		DeniedPackages:  []string{"vite", "webpack", "esbuild", "rollup", "typescript"},
	}
}

// Metrics tallies resolver activity for the status command.
type Metrics struct {
	Resolutions      uint64
	Hits             uint64
	Misses           uint64
	FilesystemAccess uint64
	IndexLookups     uint64
	AliasMatches     uint64
	totalResolveNS   int64
}

// AvgResolveTime returns the running average resolve duration.
func (m Metrics) AvgResolveTime() time.Duration {
	if m.Resolutions == 0 {
		return 0
	}
	return time.Duration(m.totalResolveNS / int64(m.Resolutions))
}

// Resolver answers resolveModule and resolveAlias queries against an
// in-memory package index and a priority-sorted alias rule list.
type Resolver struct {
	logger *slog.Logger
	cfg    Config

	mu          sync.RWMutex
	moduleIndex map[string]*ModuleIndexEntry
	aliasRules  []AliasRule
	lastBuild   time.Time

	resCache *cache.ResolutionCache

	metricsMu sync.Mutex
	metrics   Metrics
}

// New creates a Resolver. logger defaults to slog.Default() when nil.
func New(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.WellKnownRoots) == 0 {
		cfg.WellKnownRoots = []string{"examples", "src", "app", "lib"}
	}
	return &Resolver{
		logger:      logger,
		cfg:         cfg,
		moduleIndex: make(map[string]*ModuleIndexEntry),
		resCache:    cache.NewResolutionCache(),
	}
}

// SetAliases replaces the alias rule set, compiling and sorting each rule
// by priority (pattern length) descending, most specific first.
func (r *Resolver) SetAliases(patterns map[string][]string) {
	rules := make([]AliasRule, 0, len(patterns))
	for pattern, targets := range patterns {
		rules = append(rules, compileAliasRule(pattern, targets))
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	r.mu.Lock()
	r.aliasRules = rules
	r.mu.Unlock()
}

func compileAliasRule(pattern string, targets []string) AliasRule {
	prefix := strings.HasSuffix(pattern, "/*")
	base := strings.TrimSuffix(pattern, "/*")
	escaped := regexp.QuoteMeta(base)
	var expr string
	if prefix {
		expr = "^" + escaped + "/"
	} else {
		expr = "^" + escaped + "$"
	}
	return AliasRule{
		Pattern:  pattern,
		Targets:  targets,
		Priority: len(pattern),
		prefix:   prefix,
		base:     base,
		matcher:  regexp.MustCompile(expr),
	}
}

// matchAlias returns the first alias rule (by priority) whose pattern
// matches specifier, and the matched remainder (including its leading
// separator) when the rule is a prefix rule.
func (r *Resolver) matchAlias(specifier string) (AliasRule, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.aliasRules {
		if rule.prefix {
			if strings.HasPrefix(specifier, rule.base+"/") {
				rel := strings.TrimPrefix(specifier, rule.base)
				return rule, rel, true
			}
		} else if specifier == rule.Pattern {
			return rule, "", true
		}
	}
	return AliasRule{}, "", false
}

// BuildModuleIndex scans cfg.PackageStoreDir for top-level and scoped
// packages, reading each manifest and recording its selected entry point
// using the manifest field priority order plus dev/browser bias rules.
func (r *Resolver) BuildModuleIndex() error {
	entries, err := os.ReadDir(r.cfg.PackageStoreDir)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.lastBuild = time.Now()
			r.mu.Unlock()
			return nil
		}
		return err
	}

	index := make(map[string]*ModuleIndexEntry)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "@") {
			scopedDir := filepath.Join(r.cfg.PackageStoreDir, e.Name())
			scoped, err := os.ReadDir(scopedDir)
			if err != nil {
				continue
			}
			for _, s := range scoped {
				if !s.IsDir() {
					continue
				}
				name := e.Name() + "/" + s.Name()
				r.indexPackage(index, name, filepath.Join(scopedDir, s.Name()))
			}
			continue
		}
		r.indexPackage(index, e.Name(), filepath.Join(r.cfg.PackageStoreDir, e.Name()))
	}

	r.mu.Lock()
	r.moduleIndex = index
	r.lastBuild = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *Resolver) indexPackage(index map[string]*ModuleIndexEntry, name, dir string) {
	if isDenied(name, r.cfg.DeniedPackages) {
		return
	}
	m, err := readManifest(dir)
	if err != nil {
		return
	}

	entry, isESM, hasExports := selectEntry(m)
	if entry == "" {
		entry = "index.js"
	}
	full := filepath.Join(dir, entry)

	idxEntry := &ModuleIndexEntry{
		PackageName:   name,
		RootDir:       dir,
		EntryPath:     toSlash(full),
		IsESM:         isESM,
		HasExports:    hasExports,
		ManifestMTime: m.MTime,
	}
	idxEntry.OptimisedEntry = r.applyBias(dir, idxEntry.EntryPath)
	index[name] = idxEntry
}

// selectEntry implements the entry-point priority: module field →
// exports["."] (import, browser, default) → browser string → main →
// index.js.
func selectEntry(m *manifestFile) (entry string, isESM bool, hasExports bool) {
	if m.Module != "" {
		return m.Module, true, len(m.Exports) > 0
	}
	if v, has := m.exportsDot(); has {
		hasExports = true
		if v != "" {
			return v, true, true
		}
	}
	if v, ok := m.browserString(); ok && v != "" {
		return v, false, hasExports
	}
	if m.Main != "" {
		return m.Main, false, hasExports
	}
	return "index.js", false, hasExports
}

// applyBias implements the development-bias and browser-bias
// post-resolution rules, returning an alternate entry path when a
// better candidate is found on disk, or the original entry otherwise.
func (r *Resolver) applyBias(dir, entry string) string {
	base := filepath.Base(entry)

	if !r.cfg.ProductionMode && (strings.Contains(base, ".min.") || strings.Contains(base, ".prod.")) {
		if m, err := readManifest(dir); err == nil {
			if dev, ok := m.developmentCondition(); ok && dev != "" {
				return toSlash(filepath.Join(dir, dev))
			}
		}
		alt := strings.NewReplacer(".min.", ".", ".prod.", ".").Replace(base)
		if altPath := filepath.Join(filepath.Dir(entry), alt); fileExists(altPath) {
			return toSlash(altPath)
		}
	}

	if strings.Contains(base, "runtime") && !strings.Contains(base, "browser") {
		candidates := []string{"esm-browser", "browser", "esm"}
		for _, cand := range candidates {
			probe := strings.Replace(base, "runtime", cand, 1)
			altPath := filepath.Join(filepath.Dir(entry), probe)
			if fileExists(altPath) {
				return toSlash(altPath)
			}
		}
	}

	return entry
}

func isDenied(name string, denied []string) bool {
	for _, d := range denied {
		if d == name {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func toSlash(p string) string {
	return filepath.ToSlash(p)
}

// ResolveModule answers resolveModule(specifier, fromFile) → path | null,
// consulting the Resolution Cache first.
func (r *Resolver) ResolveModule(specifier, fromFile string) (string, bool) {
	start := time.Now()
	defer r.recordResolve(start)

	key := resolutionKey(specifier, fromFile)
	if cached, ok := r.resCache.Get(key); ok {
		r.bumpHit()
		return cached.ResolvedPath, cached.Found
	}
	r.bumpMiss()

	path, found := r.resolveModuleUncached(specifier)
	r.resCache.Put(key, cache.ResolutionResult{ResolvedPath: path, Found: found})
	return path, found
}

func (r *Resolver) resolveModuleUncached(specifier string) (string, bool) {
	pkgName, subpath := splitSpecifier(specifier)

	r.mu.RLock()
	entry, ok := r.moduleIndex[pkgName]
	r.mu.RUnlock()
	r.bumpIndexLookup()

	if !ok || isDenied(pkgName, r.cfg.DeniedPackages) {
		return "", false
	}

	if subpath == "" {
		if entry.OptimisedEntry != "" {
			return entry.OptimisedEntry, true
		}
		return entry.EntryPath, true
	}

	m, err := readManifest(entry.RootDir)
	r.bumpFilesystem()
	if err == nil && entry.HasExports {
		if v, ok := m.exportsSubpath(subpath); ok && v != "" {
			return toSlash(filepath.Join(entry.RootDir, v)), true
		}
	}

	for _, ext := range []string{"", ".mjs", ".js", ".cjs"} {
		probe := filepath.Join(entry.RootDir, subpath+ext)
		r.bumpFilesystem()
		if fileExists(probe) {
			return toSlash(probe), true
		}
	}

	return "", false
}

func splitSpecifier(specifier string) (pkg, subpath string) {
	if strings.HasPrefix(specifier, "@") {
		parts := strings.SplitN(specifier, "/", 3)
		if len(parts) >= 2 {
			pkg = parts[0] + "/" + parts[1]
		}
		if len(parts) == 3 {
			subpath = parts[2]
		}
		return
	}
	idx := strings.Index(specifier, "/")
	if idx < 0 {
		return specifier, ""
	}
	return specifier[:idx], specifier[idx+1:]
}

// ResolveAlias answers resolveAlias(specifier) → output-path | null per
// the alias-to-output-path algorithm.
func (r *Resolver) ResolveAlias(specifier string) (string, bool) {
	rule, rel, ok := r.matchAlias(specifier)
	if !ok {
		return "", false
	}
	r.bumpAliasMatch()

	for _, target := range rule.Targets {
		out := r.aliasOutputPath(rule, rel, target)
		if out != "" {
			return out, true
		}
	}
	return "", false
}

func (r *Resolver) aliasOutputPath(rule AliasRule, rel, target string) string {
	dist := r.cfg.DistRoot

	if !rule.prefix && !strings.Contains(target, "*") {
		stripped := strings.TrimPrefix(target, "./")
		stripped = strings.TrimPrefix(stripped, "src/")
		return "/" + dist + "/" + stripped
	}

	if strings.HasPrefix(target, "/") {
		return "/" + dist + rel
	}

	cleanTarget := strings.TrimSuffix(strings.TrimPrefix(target, "./"), "/*")

	switch {
	case cleanTarget == dist || strings.HasPrefix(cleanTarget, dist+"/"):
		return "/" + dist + rel
	case strings.HasPrefix(cleanTarget, "src/"):
		return "/" + dist + "/" + strings.TrimPrefix(cleanTarget, "src/") + rel
	case isWellKnownRoot(cleanTarget, r.cfg.WellKnownRoots):
		return "/" + dist + rel
	default:
		return "/" + dist + "/" + cleanTarget + rel
	}
}

func isWellKnownRoot(name string, roots []string) bool {
	for _, root := range roots {
		if name == root {
			return true
		}
	}
	return false
}

func resolutionKey(specifier, fromFile string) string {
	sum := sha256.Sum256([]byte(specifier + "\x00" + fromFile))
	return hex.EncodeToString(sum[:])
}

func (r *Resolver) recordResolve(start time.Time) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	r.metrics.Resolutions++
	r.metrics.totalResolveNS += int64(time.Since(start))
}

func (r *Resolver) bumpHit()           { r.metricsMu.Lock(); r.metrics.Hits++; r.metricsMu.Unlock() }
func (r *Resolver) bumpMiss()          { r.metricsMu.Lock(); r.metrics.Misses++; r.metricsMu.Unlock() }
func (r *Resolver) bumpFilesystem()    { r.metricsMu.Lock(); r.metrics.FilesystemAccess++; r.metricsMu.Unlock() }
func (r *Resolver) bumpIndexLookup()   { r.metricsMu.Lock(); r.metrics.IndexLookups++; r.metricsMu.Unlock() }
func (r *Resolver) bumpAliasMatch()    { r.metricsMu.Lock(); r.metrics.AliasMatches++; r.metricsMu.Unlock() }

// Metrics returns a snapshot of resolver activity counters.
func (r *Resolver) Metrics() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// CacheMetrics reports the Resolution Cache's occupancy.
func (r *Resolver) CacheMetrics() cache.Metrics {
	return r.resCache.Metrics()
}

// ShouldRebuild reports whether the module index is older than the
// configured rebuild interval.
func (r *Resolver) ShouldRebuild() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastBuild.IsZero() {
		return true
	}
	return time.Since(r.lastBuild) > r.cfg.RebuildInterval
}
