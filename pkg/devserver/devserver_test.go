package devserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/store"
)

func TestHandle_ServesEmbeddedHMRLoader(t *testing.T) {
	s, err := New(Config{DistRoot: t.TempDir()}, nil, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/__versa/hmr-loader.js", nil)
	rec := httptest.NewRecorder()
	s.middleware(http.HandlerFunc(s.handle)).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "WebSocket")
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandle_InterceptsHMRCacheEntry(t *testing.T) {
	tracker := hmr.New(nil, "/src", "/dist", nil)
	tracker.Put("/src/A.sfc", hmr.SFCCacheEntry{
		SourcePath: "/src/A.sfc",
		OutputPath: "/A.js",
		JS:         []byte("export default { __versaTemplate: 'patched' };"),
	})

	s, err := New(Config{DistRoot: t.TempDir()}, tracker, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/A.js", nil)
	rec := httptest.NewRecorder()
	s.middleware(http.HandlerFunc(s.handle)).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "patched")
}

func TestHandle_FallsThroughToStaticFile(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "plain.js"), []byte("console.log(1)"), 0o600))

	s, err := New(Config{DistRoot: dist}, nil, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/plain.js", nil)
	rec := httptest.NewRecorder()
	s.middleware(http.HandlerFunc(s.handle)).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log(1)")
}

func TestHandle_ServesFromContentAddressedStoreBeforeStaticFile(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "stale.js"), []byte("stale"), 0o600))

	out := store.New()
	require.NoError(t, out.Put(store.Entry{
		SourcePath: "/src/stale.ts",
		OutputPath: "/stale.js",
		Hash:       "abc123",
		Code:       []byte("console.log('fresh')"),
	}))

	s, err := New(Config{DistRoot: dist}, nil, out, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/stale.js", nil)
	rec := httptest.NewRecorder()
	s.middleware(http.HandlerFunc(s.handle)).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fresh", "a store hit must win over the on-disk file")
}

func TestHandle_AssetsOmitServesAssetsLocallyInsteadOfProxying(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "logo.svg"), []byte("<svg/>"), 0o600))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("upstream response"))
	}))
	defer upstream.Close()

	s, err := New(Config{DistRoot: dist, ProxyURL: upstream.URL, AssetsOmit: true}, nil, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/logo.svg", nil)
	rec := httptest.NewRecorder()
	s.middleware(http.HandlerFunc(s.handle)).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg/>", "assetsOmit must keep static assets off the proxy")
}
