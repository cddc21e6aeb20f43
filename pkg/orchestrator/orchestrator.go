// Package orchestrator implements the Compile Orchestrator: the
// single entry point that turns one source file into one compiled
// output file, coordinating the Resolver, the Transform Pipeline, and
// the Type-Check Worker Pool.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kriollo/versacompile/pkg/cache"
	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/resolver"
	"github.com/kriollo/versacompile/pkg/sourcefile"
	"github.com/kriollo/versacompile/pkg/store"
	"github.com/kriollo/versacompile/pkg/transform"
	"github.com/kriollo/versacompile/pkg/typecheck"
)

// TypeCheckPolicy decides whether type errors block emission. Open
// Question (a): default Block; the core only consumes this value, it
// never derives it from CLI flags itself.
type TypeCheckPolicy string

const (
	PolicyBlock TypeCheckPolicy = "block"
	PolicyWarn  TypeCheckPolicy = "warn"
)

// Config controls one Orchestrator instance.
type Config struct {
	SourceRoot      string
	DistRoot        string
	Production      bool
	TypeCheck       bool
	TypeCheckPolicy TypeCheckPolicy
}

// CompileResult summarizes one compileFile call.
type CompileResult struct {
	SourcePath       string
	DestPath         string
	Skipped          bool
	SkipReason       string
	ContentWasWritten bool
	Dependencies     []string
	Warnings         []string
	Err              error
}

// Orchestrator owns the per-file compile pipeline and serialises
// compiles of the same path, per the concurrency model's "each file has
// one in-flight compile at a time" guarantee.
type Orchestrator struct {
	cfg      Config
	logger   *slog.Logger
	resolver *resolver.Resolver
	pipeline *transform.Pipeline
	pool     *typecheck.Pool
	tracker  *hmr.Tracker
	store    *store.Store

	parseCache *cache.ParseCache

	fileLocksMu sync.Mutex
	fileLocks   map[string]*sync.Mutex
}

// New builds an Orchestrator. pool may be nil when type-checking is
// disabled. out is the content-addressed output store the Dev Server
// Shim serves compiled output from; it may be nil when nothing will
// ever ask the Orchestrator to keep compiled bytes around (e.g. a
// one-shot "prod" build with no running dev server).
func New(cfg Config, res *resolver.Resolver, pipeline *transform.Pipeline, pool *typecheck.Pool, tracker *hmr.Tracker, out *store.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		resolver:   res,
		pipeline:   pipeline,
		pool:       pool,
		tracker:    tracker,
		store:      out,
		parseCache: cache.NewParseCache(),
		fileLocks:  make(map[string]*sync.Mutex),
	}
}

// DeleteOutput purges the content-addressed store entry for a source
// path that was removed from disk, keeping it from ever being served
// after the watcher reports a delete.
func (o *Orchestrator) DeleteOutput(sourcePath string) {
	if o.store != nil {
		o.store.DeleteEntryForFile(sourcePath)
	}
}

// CacheMetrics reports the Parse Cache's occupancy, consumed by the
// status command alongside the Transform, Resolution, and type-check
// memoisation caches each owned by their respective packages.
func (o *Orchestrator) CacheMetrics() cache.Metrics {
	return o.parseCache.Metrics()
}

// StoreEntryCount reports how many compiled outputs the content-addressed
// store currently holds, consumed by the status command's "Store" line.
func (o *Orchestrator) StoreEntryCount() int {
	if o.store == nil {
		return 0
	}
	return o.store.Count()
}

// parsedSourceFile builds the SourceFile model for path, reusing the
// Parse Cache entry when content hasn't changed since it was last
// recorded under this path. Recompiles triggered by an unrelated watch
// event hit this path with identical content, so the cache saves the
// sha256 and struct allocation on the common no-op case.
func (o *Orchestrator) parsedSourceFile(path string, content []byte) (*sourcefile.SourceFile, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if entry, ok := o.parseCache.Get(path); ok && entry.ContentHash == hash {
		if sf, ok := entry.Handle.(*sourcefile.SourceFile); ok {
			return sf, nil
		}
	}

	sf, err := sourcefile.FromContent(path, content, time.Now())
	if err != nil {
		return nil, err
	}
	o.parseCache.Put(path, cache.ParseEntry{
		Path:        path,
		ModTimeUnix: sf.ModTime.Unix(),
		ContentHash: hash,
		Handle:      sf,
	})
	return sf, nil
}

func (o *Orchestrator) lockFor(path string) *sync.Mutex {
	o.fileLocksMu.Lock()
	defer o.fileLocksMu.Unlock()
	l, ok := o.fileLocks[path]
	if !ok {
		l = &sync.Mutex{}
		o.fileLocks[path] = l
	}
	return l
}

// CompileFile runs the ten-step pipeline from the Compile Orchestrator
// spec over one source path.
func (o *Orchestrator) CompileFile(ctx context.Context, path string) CompileResult {
	lock := o.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	// Step 1: reject declaration files outright.
	if strings.HasSuffix(path, ".d.ts") {
		return CompileResult{SourcePath: path, Skipped: true, SkipReason: "declaration file"}
	}

	// Step 2: compute destination path.
	destPath, err := o.destPathFor(path)
	if err != nil {
		return CompileResult{SourcePath: path, Err: err}
	}

	// Step 3: read source.
	content, err := os.ReadFile(path)
	if err != nil {
		return CompileResult{SourcePath: path, DestPath: destPath, Err: clierr.NewSourceReadFailed(path, "check the file exists and is readable", err)}
	}
	if len(content) == 0 {
		return CompileResult{SourcePath: path, DestPath: destPath, Skipped: true, SkipReason: "empty source", ContentWasWritten: false}
	}

	sf, err := o.parsedSourceFile(path, content)
	if err != nil {
		return CompileResult{SourcePath: path, DestPath: destPath, Err: err}
	}

	// Step 4: select the transform list by extension.
	stages := transform.StageOrder(sf.Extension, o.cfg.Production)

	// Step 5: type-check if enabled and applicable.
	if o.cfg.TypeCheck && o.pool != nil && o.requiresTypeCheck(sf) {
		resp := o.pool.TypeCheck(ctx, typecheck.Request{
			Filename: path,
			Source:   content,
			Options:  typecheck.TaskOptions{IsSFC: sf.IsSFC(), IsDeclarationFile: false},
		})
		if resp.Err != nil {
			return CompileResult{SourcePath: path, DestPath: destPath, Err: resp.Err}
		}
		if !resp.OK && o.cfg.TypeCheckPolicy == PolicyBlock {
			return CompileResult{
				SourcePath: path,
				DestPath:   destPath,
				Err:        clierr.NewTypeCheckError(path, strings.Join(resp.Errors, "; "), nil),
			}
		}
		if !resp.OK {
			return o.finishAfterWarn(ctx, sf, content, destPath, stages, resp.Errors)
		}
	}

	return o.transformAndWrite(sf, content, destPath, stages, nil)
}

func (o *Orchestrator) finishAfterWarn(_ context.Context, sf *sourcefile.SourceFile, content []byte, destPath string, stages []string, warnings []string) CompileResult {
	return o.transformAndWrite(sf, content, destPath, stages, warnings)
}

// requiresTypeCheck reports whether a file is TS or an SFC with a TS
// script block, per step 5's condition.
func (o *Orchestrator) requiresTypeCheck(sf *sourcefile.SourceFile) bool {
	if sf.IsTypeScript() {
		return true
	}
	content := string(sf.Content)
	return sf.IsSFC() && (strings.Contains(content, `lang="ts"`) || strings.Contains(content, `lang='ts'`))
}

func (o *Orchestrator) transformAndWrite(sf *sourcefile.SourceFile, content []byte, destPath string, stages []string, warnings []string) CompileResult {
	// Step 6: run the Transform Pipeline.
	result, err := o.pipeline.Run(sf.Path, content, stages, transform.Options{Production: o.cfg.Production})
	if err != nil {
		var stageErr *transform.StageError
		if asStageErr(err, &stageErr) {
			return CompileResult{SourcePath: sf.Path, DestPath: destPath, Err: clierr.NewTransformFailure(sf.Path, stageErr.Stage, stageErr.Err)}
		}
		return CompileResult{SourcePath: sf.Path, DestPath: destPath, Err: clierr.NewTransformFailure(sf.Path, "unknown", err)}
	}

	// Step 7: detect empty-output-after-minification failure.
	if len(result.Code) == 0 {
		return CompileResult{SourcePath: sf.Path, DestPath: destPath, Err: clierr.NewEmptyOutput(sf.Path)}
	}

	// Step 8: record SFCCacheEntry if HMR placeholders were produced.
	if sf.IsSFC() {
		if len(result.HMRDeps) > 0 && o.tracker != nil {
			o.tracker.Put(sf.Path, hmr.SFCCacheEntry{
				SourcePath: sf.Path,
				OutputPath: destPath,
				JS:         result.Code,
				HMRDeps:    result.HMRDeps,
			})
		}
	}

	// Step 9: atomic write-then-rename.
	if err := atomicWrite(destPath, result.Code); err != nil {
		return CompileResult{SourcePath: sf.Path, DestPath: destPath, Err: clierr.NewInternalError("write failed", err.Error(), "", err)}
	}

	if o.store != nil {
		sum := sha256.Sum256(result.Code)
		_ = o.store.Put(store.Entry{
			SourcePath: sf.Path,
			OutputPath: destPath,
			Hash:       hex.EncodeToString(sum[:]),
			Code:       result.Code,
			SourceMap:  result.SourceMap,
		})
	}

	// Step 10: success.
	return CompileResult{
		SourcePath:        sf.Path,
		DestPath:          destPath,
		ContentWasWritten: true,
		Dependencies:      result.Dependencies,
		Warnings:          warnings,
	}
}

// destPathFor implements step 2: replace the source root prefix with
// the distribution root and rewrite the extension to .js.
func (o *Orchestrator) destPathFor(path string) (string, error) {
	rel, err := filepath.Rel(o.cfg.SourceRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is not within the source root %q", path, o.cfg.SourceRoot)
	}
	ext := filepath.Ext(rel)
	rel = strings.TrimSuffix(rel, ext) + ".js"
	return filepath.Join(o.cfg.DistRoot, rel), nil
}

// atomicWrite implements step 9's write-then-rename guarantee: partial
// failures never overwrite a previously good output.
func atomicWrite(destPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return err
	}
	tmp := destPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

// asStageErr is a small helper so this package doesn't need to import
// errors.As at every call site.
func asStageErr(err error, target **transform.StageError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if se, ok := err.(*transform.StageError); ok {
			*target = se
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
