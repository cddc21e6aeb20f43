// Package transform implements the Transform Pipeline: an ordered list of
// named stages that turn a source file's bytes into browser-ready
// output, with per-invocation caching and a chained, metadata-only
// source-map.
//
// Position-accurate source maps are explicitly not produced (open
// question c): the pipeline composes the per-stage map fragments and a
// length counter into a data-URL-encoded JSON document. Callers that
// need real position mapping must integrate a dedicated mapping library;
// none is wired here.
package transform

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kriollo/versacompile/pkg/cache"
)

// Options are the canonical, JSON-serialisable per-invocation settings
// that participate in the cache key alongside the code and stage names.
type Options struct {
	Production  bool   `json:"production"`
	ScriptLang  string `json:"scriptLang,omitempty"` // for SFC: "ts" or "js"
	StrictTypes bool   `json:"strictTypes,omitempty"`
}

// canonicalJSON renders Options deterministically: Go's encoding/json
// already marshals struct fields in declaration order, which is stable
// across runs, making this usable as a cache key component without a
// third-party canonicalizer.
func (o Options) canonicalJSON() []byte {
	data, _ := json.Marshal(o)
	return data
}

// StageFunc is one pipeline stage: a pure function of code, options, and
// the inbound source-map chain so far, producing new code, an optional
// outbound map fragment, and any import specifiers it observed.
type StageFunc func(code []byte, opts Options, inboundMap string) (outCode []byte, outboundMap string, deps []string, err error)

// Result is the outcome of running the full stage list once. Dependencies
// is a clean list of bare import specifiers; HMRDeps is the separate
// specifier-to-placeholder map the hmr-instrument stage produced, kept
// out of Dependencies so it never leaks placeholder-tagged entries into
// the list external callers treat as "the file's imports".
type Result struct {
	Code         []byte
	SourceMap    string
	Dependencies []string
	HMRDeps      map[string]string
	StageNames   []string
}

// StageError tags a stage failure with the stage name and input file,
// per the pipeline's failure contract.
type StageError struct {
	Stage string
	File  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("transform stage %q failed for %s: %v", e.Stage, e.File, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline owns the stage registry and the Transform Cache.
type Pipeline struct {
	logger *slog.Logger
	stages map[string]StageFunc
	cache  *cache.TransformCache
}

// New creates a Pipeline with the built-in simplified stage
// implementations registered. logger defaults to slog.Default() if nil.
func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		logger: logger,
		stages: make(map[string]StageFunc),
		cache:  cache.NewTransformCache(),
	}
	p.RegisterStage("type-strip", TypeStrip)
	p.RegisterStage("sfc-compile", SFCCompile)
	p.RegisterStage("alias-rewrite", AliasRewriteNoop)
	p.RegisterStage("hmr-instrument", HMRInstrumentNoop)
	p.RegisterStage("strip-template-tag", StripTemplateTag)
	p.RegisterStage("remove-preserve-comments", RemovePreserveComments)
	p.RegisterStage("minify", Minify)
	return p
}

// CacheMetrics reports the Transform Cache's occupancy.
func (p *Pipeline) CacheMetrics() cache.Metrics {
	return p.cache.Metrics()
}

// RegisterStage installs or overrides a named stage, letting callers
// plug in a real parser/type-checker/minifier instead of the built-in
// simplified implementation.
func (p *Pipeline) RegisterStage(name string, fn StageFunc) {
	p.stages[name] = fn
}

// StageOrder returns the ordered stage-name list for a source extension,
// applying the hmr-instrument/minify conditionals based on build mode.
func StageOrder(extension string, production bool) []string {
	hmr := !production
	switch extension {
	case ".ts":
		order := []string{"type-strip"}
		if hmr {
			order = append(order, "hmr-instrument")
		}
		order = append(order, "alias-rewrite")
		if production {
			order = append(order, "minify")
		}
		return order
	case ".vue", ".sfc":
		order := []string{"sfc-compile", "type-strip"}
		if hmr {
			order = append(order, "hmr-instrument")
		}
		order = append(order, "strip-template-tag", "remove-preserve-comments", "alias-rewrite")
		if production {
			order = append(order, "minify")
		}
		return order
	default: // .js and anything else falls through the plain JS chain
		order := []string{}
		if hmr {
			order = append(order, "hmr-instrument")
		}
		order = append(order, "alias-rewrite")
		if production {
			order = append(order, "minify")
		}
		return order
	}
}

// Run executes stageNames in order over code, returning a cached deep
// clone on a cache hit.
func (p *Pipeline) Run(file string, code []byte, stageNames []string, opts Options) (Result, error) {
	key := cacheKey(code, stageNames, opts)
	if cached, ok := p.cache.Get(key); ok {
		p.logger.Debug("transform.cache_hit", "file", file, "stages", strings.Join(stageNames, ","))
		return Result{
			Code:         cached.Code,
			SourceMap:    cached.SourceMap,
			Dependencies: cached.Dependencies,
			HMRDeps:      cached.HMRDeps,
			StageNames:   cached.StageNames,
		}, nil
	}

	cur := code
	var mapChain []string
	var deps []string
	seenDeps := make(map[string]struct{})
	var hmrDeps map[string]string

	for _, name := range stageNames {
		fn, ok := p.stages[name]
		if !ok {
			return Result{}, &StageError{Stage: name, File: file, Err: fmt.Errorf("no stage registered with this name")}
		}
		inbound := ""
		if len(mapChain) > 0 {
			inbound = mapChain[len(mapChain)-1]
		}
		out, outboundMap, stageDeps, err := fn(cur, opts, inbound)
		if err != nil {
			return Result{}, &StageError{Stage: name, File: file, Err: err}
		}
		cur = out
		if outboundMap != "" {
			mapChain = append(mapChain, outboundMap)
		}
		// hmr-instrument reports specifier=placeholder pairs, not bare
		// import specifiers; keep them out of the public Dependencies
		// list so later stages re-extracting specifiers from the
		// now-query-suffixed code never pollute it.
		if name == "hmr-instrument" {
			for _, pair := range stageDeps {
				if specifier, placeholder, ok := strings.Cut(pair, "="); ok {
					if hmrDeps == nil {
						hmrDeps = make(map[string]string, len(stageDeps))
					}
					hmrDeps[specifier] = placeholder
				}
			}
			continue
		}
		for _, d := range stageDeps {
			if _, seen := seenDeps[d]; !seen {
				seenDeps[d] = struct{}{}
				deps = append(deps, d)
			}
		}
	}

	composed := composeSourceMap(mapChain)
	result := TransformResultOf(cur, composed, deps, hmrDeps, stageNames)
	p.cache.Put(key, result.Clone())

	return Result{Code: cur, SourceMap: composed, Dependencies: deps, HMRDeps: hmrDeps, StageNames: stageNames}, nil
}

// TransformResultOf adapts a pipeline Result into the shared cache entry
// type, keeping the cache package free of a transform-package import.
func TransformResultOf(code []byte, sourceMap string, deps []string, hmrDeps map[string]string, stages []string) cache.TransformResult {
	return cache.TransformResult{Code: code, SourceMap: sourceMap, Dependencies: deps, HMRDeps: hmrDeps, StageNames: stages}
}

func cacheKey(code []byte, stageNames []string, opts Options) string {
	h := sha256.New()
	h.Write(code)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(stageNames, ",")))
	h.Write([]byte{0})
	h.Write(opts.canonicalJSON())
	return hex.EncodeToString(h.Sum(nil))
}

// sourceMapChain is the metadata-only document composed from a run's
// per-stage map fragments.
type sourceMapChain struct {
	ChainLength int      `json:"chainLength"`
	Stages      []string `json:"stages"`
}

// composeSourceMap builds the data-URL-encoded JSON chain document. An
// empty chain returns "" (no map to propagate).
func composeSourceMap(chain []string) string {
	if len(chain) == 0 {
		return ""
	}
	doc := sourceMapChain{ChainLength: len(chain), Stages: append([]string(nil), chain...)}
	data, _ := json.Marshal(doc)
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(data)
}

// sortedStageNames returns the names of a stage map in sorted order, for
// deterministic iteration over it.
func sortedStageNames(m map[string]StageFunc) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
