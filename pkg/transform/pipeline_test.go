package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrder_MatchesExtensionTable(t *testing.T) {
	assert.Equal(t, []string{"type-strip", "hmr-instrument", "alias-rewrite"}, StageOrder(".ts", false))
	assert.Equal(t, []string{"type-strip", "alias-rewrite", "minify"}, StageOrder(".ts", true))
	assert.Equal(t, []string{"hmr-instrument", "alias-rewrite"}, StageOrder(".js", false))

	sfcDev := StageOrder(".vue", false)
	assert.Equal(t, []string{"sfc-compile", "type-strip", "hmr-instrument", "strip-template-tag", "remove-preserve-comments", "alias-rewrite"}, sfcDev)
}

func TestPipeline_Run_Deterministic(t *testing.T) {
	p := New(nil)
	code := []byte("const x: number = 1;\nexport default x;\n")

	r1, err := p.Run("a.ts", code, StageOrder(".ts", false), Options{})
	require.NoError(t, err)
	r2, err := p.Run("a.ts", code, StageOrder(".ts", false), Options{})
	require.NoError(t, err)

	assert.Equal(t, r1.Code, r2.Code, "identical input must produce byte-identical output")
}

func TestPipeline_Run_CacheHitReturnsClone(t *testing.T) {
	p := New(nil)
	code := []byte("const x = 1;\n")

	first, err := p.Run("a.js", code, []string{"alias-rewrite"}, Options{})
	require.NoError(t, err)
	first.Code[0] = 'Z'

	second, err := p.Run("a.js", code, []string{"alias-rewrite"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "const x = 1;\n", string(second.Code), "mutating a prior result must not corrupt the cached entry")
}

func TestPipeline_Run_UnknownStageFails(t *testing.T) {
	p := New(nil)
	_, err := p.Run("a.ts", []byte("x"), []string{"does-not-exist"}, Options{})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "does-not-exist", stageErr.Stage)
}

func TestTypeStrip_RemovesAnnotationsAndInterfaces(t *testing.T) {
	code := []byte(`interface Foo {
  bar: string;
}
function greet(name: string): string {
  return name;
}
`)
	out, _, _, err := TypeStrip(code, Options{}, "")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "interface Foo")
	assert.NotContains(t, string(out), ": string")
}

func TestSFCCompile_ExtractsScriptAndTemplate(t *testing.T) {
	code := []byte(`<template><div>{{ msg }}</div></template>
<script lang="ts">
import util from './util.ts';
const msg = util();
</script>
`)
	out, _, deps, err := SFCCompile(code, Options{}, "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "export default")
	assert.Contains(t, string(out), "__versaTemplate")
	assert.Equal(t, []string{"./util.ts"}, deps)
}

func TestHMRInstrumentNoop_AppendsPlaceholderToRelativeImports(t *testing.T) {
	code := []byte(`import util from './util.ts';\nimport pkg from 'some-pkg';\n`)
	out, _, pairs, err := HMRInstrumentNoop(code, Options{}, "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "./util.ts?__hmr_placeholder_")
	assert.NotContains(t, string(out), "some-pkg?__hmr_placeholder_")
	require.Len(t, pairs, 1)
	assert.Contains(t, pairs[0], "./util.ts=")
}

func TestPipeline_Run_DependenciesExcludeHMRPlaceholders(t *testing.T) {
	p := New(nil)
	code := []byte("import util from './util';\nimport pkg from 'some-pkg';\n")

	r, err := p.Run("a.js", code, StageOrder(".js", false), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"./util", "some-pkg"}, r.Dependencies, "Dependencies must hold bare specifiers, not hmr-instrument pairs or query-suffixed junk")
	require.Contains(t, r.HMRDeps, "./util")
	assert.NotContains(t, r.HMRDeps, "some-pkg", "only relative specifiers get an hmr placeholder")
}

func TestComposeSourceMap_EmptyChainYieldsEmptyString(t *testing.T) {
	assert.Equal(t, "", composeSourceMap(nil))
	assert.NotEmpty(t, composeSourceMap([]string{"frag1", "frag2"}))
}
