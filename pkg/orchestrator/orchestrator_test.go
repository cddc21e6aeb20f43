package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/resolver"
	"github.com/kriollo/versacompile/pkg/store"
	"github.com/kriollo/versacompile/pkg/transform"
)

func newTestOrchestrator(t *testing.T, production bool) (*Orchestrator, string, string) {
	o, sourceRoot, distRoot, _ := newTestOrchestratorWithStore(t, production)
	return o, sourceRoot, distRoot
}

func newTestOrchestratorWithStore(t *testing.T, production bool) (*Orchestrator, string, string, *store.Store) {
	t.Helper()
	sourceRoot := t.TempDir()
	distRoot := t.TempDir()

	resCfg := resolver.DefaultConfig()
	resCfg.DistRoot = distRoot
	resCfg.PackageStoreDir = t.TempDir()
	res := resolver.New(resCfg, nil)

	pipeline := transform.New(nil)
	tracker := hmr.New(res, sourceRoot, distRoot, nil)
	out := store.New()

	cfg := Config{SourceRoot: sourceRoot, DistRoot: distRoot, Production: production, TypeCheck: false}
	return New(cfg, res, pipeline, nil, tracker, out, nil), sourceRoot, distRoot, out
}

func TestCompileFile_RejectsDeclarationFiles(t *testing.T) {
	o, sourceRoot, _ := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "types.d.ts")
	require.NoError(t, os.WriteFile(path, []byte("export type X = 1;"), 0o600))

	result := o.CompileFile(context.Background(), path)
	assert.True(t, result.Skipped)
	assert.Equal(t, "declaration file", result.SkipReason)
	assert.False(t, result.ContentWasWritten)
}

func TestCompileFile_SkipsEmptySource(t *testing.T) {
	o, sourceRoot, _ := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "empty.ts")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	result := o.CompileFile(context.Background(), path)
	assert.True(t, result.Skipped)
	assert.False(t, result.ContentWasWritten)
}

func TestCompileFile_WritesOutputAtomically(t *testing.T) {
	o, sourceRoot, distRoot := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "a.ts")
	require.NoError(t, os.WriteFile(path, []byte("const x: number = 1;\nexport default x;\n"), 0o600))

	result := o.CompileFile(context.Background(), path)
	require.NoError(t, result.Err)
	assert.True(t, result.ContentWasWritten)

	want := filepath.Join(distRoot, "a.js")
	assert.Equal(t, want, result.DestPath)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.NotContains(t, string(data), ": number", "type annotations must be stripped from compiled output")
}

func TestCompileFile_DeterministicOutput(t *testing.T) {
	o, sourceRoot, _ := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "b.ts")
	require.NoError(t, os.WriteFile(path, []byte("const y = 2;\n"), 0o600))

	r1 := o.CompileFile(context.Background(), path)
	require.NoError(t, r1.Err)
	out1, err := os.ReadFile(r1.DestPath)
	require.NoError(t, err)

	r2 := o.CompileFile(context.Background(), path)
	require.NoError(t, r2.Err)
	out2, err := os.ReadFile(r2.DestPath)
	require.NoError(t, err)

	assert.Equal(t, out1, out2, "identical input and options must produce byte-identical output")
}

func TestCompileFile_RejectsPathOutsideSourceRoot(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, false)
	outside := filepath.Join(t.TempDir(), "rogue.ts")
	require.NoError(t, os.WriteFile(outside, []byte("const z = 1;"), 0o600))

	result := o.CompileFile(context.Background(), outside)
	require.Error(t, result.Err)
}

func TestCompileFile_ParseCacheHitsOnUnchangedContent(t *testing.T) {
	o, sourceRoot, _ := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "c.ts")
	require.NoError(t, os.WriteFile(path, []byte("const c = 3;\n"), 0o600))

	require.NoError(t, o.CompileFile(context.Background(), path).Err)
	afterFirst := o.CacheMetrics()
	assert.Equal(t, 1, afterFirst.Entries)
	assert.EqualValues(t, 1, afterFirst.Misses)

	require.NoError(t, o.CompileFile(context.Background(), path).Err)
	afterSecond := o.CacheMetrics()
	assert.Equal(t, 1, afterSecond.Entries, "recompiling the same path reuses the cached entry, not a new one")
	assert.EqualValues(t, 1, afterSecond.Hits)
}

func TestCompileFile_PopulatesOutputStoreAndDeletesOnRemoval(t *testing.T) {
	o, sourceRoot, distRoot, out := newTestOrchestratorWithStore(t, false)
	path := filepath.Join(sourceRoot, "d.ts")
	require.NoError(t, os.WriteFile(path, []byte("const d = 4;\n"), 0o600))

	result := o.CompileFile(context.Background(), path)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, out.Count())

	entry, ok := out.GetByOutputPath(filepath.Join(distRoot, "d.js"))
	require.True(t, ok)
	assert.Equal(t, path, entry.SourcePath)
	assert.NotEmpty(t, entry.Hash)

	o.DeleteOutput(path)
	assert.Equal(t, 0, out.Count())
}

func TestCompileFile_DependenciesContainNoHMRPlaceholders(t *testing.T) {
	o, sourceRoot, _ := newTestOrchestrator(t, false)
	path := filepath.Join(sourceRoot, "e.ts")
	require.NoError(t, os.WriteFile(path, []byte("import './sibling';\nconst e = 5;\n"), 0o600))

	result := o.CompileFile(context.Background(), path)
	require.NoError(t, result.Err)
	for _, dep := range result.Dependencies {
		assert.NotContains(t, dep, "=", "Dependencies must hold bare specifiers, not hmr-instrument pairs")
		assert.NotContains(t, dep, "?__hmr_placeholder_", "Dependencies must not carry hmr query-suffixed junk")
	}
}
