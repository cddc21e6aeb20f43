package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DistRoot = "dist"
	cfg.PackageStoreDir = t.TempDir()
	return New(cfg, nil)
}

func TestAliasResolution_PrefixScenario(t *testing.T) {
	r := newTestResolver(t)
	r.SetAliases(map[string][]string{"@/*": {"/src/*"}})

	out, ok := r.ResolveAlias("@/components/Button.vue")
	require.True(t, ok)
	assert.Equal(t, "/dist/components/Button.vue", out)

	out, ok = r.ResolveAlias("@/utils/helpers.ts")
	require.True(t, ok)
	assert.Equal(t, "/dist/utils/helpers.ts", out)

	_, ok = r.ResolveAlias("./relative/path.js")
	assert.False(t, ok)
}

func TestAliasResolution_ExactScenario(t *testing.T) {
	r := newTestResolver(t)
	r.SetAliases(map[string][]string{"#config": {"config/index.js"}})

	out, ok := r.ResolveAlias("#config")
	require.True(t, ok)
	assert.Equal(t, "/dist/config/index.js", out)
}

func TestAliasResolution_MostSpecificWins(t *testing.T) {
	r := newTestResolver(t)
	r.SetAliases(map[string][]string{
		"@/*":           {"/src/*"},
		"@/widgets/*":   {"/src/special-widgets/*"},
	})

	out, ok := r.ResolveAlias("@/widgets/Card.ts")
	require.True(t, ok)
	assert.Equal(t, "/dist/Card.ts", out, "the longer, more specific pattern must win over the generic one")
}

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	pkgDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pkgDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(content), 0o600))
}

func TestResolveModule_ProductionVsDevelopmentBias(t *testing.T) {
	store := t.TempDir()
	writeManifest(t, store, "vue", `{
		"name": "vue",
		"main": "dist/vue.runtime.min.js",
		"exports": {
			".": { "development": "dist/vue.runtime.js", "default": "dist/vue.runtime.min.js" }
		}
	}`)
	require.NoError(t, os.MkdirAll(filepath.Join(store, "vue", "dist"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(store, "vue", "dist", "vue.runtime.js"), nil, 0o600))

	devCfg := DefaultConfig()
	devCfg.PackageStoreDir = store
	devCfg.ProductionMode = false
	dev := New(devCfg, nil)
	require.NoError(t, dev.BuildModuleIndex())

	path, ok := dev.ResolveModule("vue", "")
	require.True(t, ok)
	assert.NotContains(t, path, ".min.", "development mode must not serve the minified variant")

	prodCfg := devCfg
	prodCfg.ProductionMode = true
	prod := New(prodCfg, nil)
	require.NoError(t, prod.BuildModuleIndex())

	path, ok = prod.ResolveModule("vue", "")
	require.True(t, ok)
	assert.Contains(t, path, ".min.", "production mode should keep the minified entry")
}

func TestResolveModule_EntrySelectionPriority(t *testing.T) {
	store := t.TempDir()
	writeManifest(t, store, "pkg-module", `{"name":"pkg-module","module":"esm/index.js","main":"cjs/index.js"}`)

	cfg := DefaultConfig()
	cfg.PackageStoreDir = store
	r := New(cfg, nil)
	require.NoError(t, r.BuildModuleIndex())

	path, ok := r.ResolveModule("pkg-module", "")
	require.True(t, ok)
	assert.Contains(t, path, "esm/index.js", "module field must win over main")
}

func TestResolveModule_Uniqueness(t *testing.T) {
	r := newTestResolver(t)
	r.SetAliases(nil)

	first, ok1 := r.ResolveModule("not-a-package", "")
	second, ok2 := r.ResolveModule("not-a-package", "")
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestResolveModule_DeniedPackageNeverResolves(t *testing.T) {
	store := t.TempDir()
	writeManifest(t, store, "vite", `{"name":"vite","main":"index.js"}`)

	cfg := DefaultConfig()
	cfg.PackageStoreDir = store
	r := New(cfg, nil)
	require.NoError(t, r.BuildModuleIndex())

	_, ok := r.ResolveModule("vite", "")
	assert.False(t, ok)
}
