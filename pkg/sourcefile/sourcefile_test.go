package sourcefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ComputesHashAndExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widget.ts")
	require.NoError(t, os.WriteFile(path, []byte("export const x = 1;\n"), 0o600))

	sf, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, ".ts", sf.Extension)
	assert.NotEmpty(t, sf.Hash)
	assert.True(t, sf.IsTypeScript())
	assert.False(t, sf.IsSFC())
}

func TestFromContent_SameBytesSameHash(t *testing.T) {
	a, err := FromContent("a.ts", []byte("const x = 1;"), time.Now())
	require.NoError(t, err)
	b, err := FromContent("b.ts", []byte("const x = 1;"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash, "identical content must hash identically regardless of path")
}

func TestChangedSince(t *testing.T) {
	original, err := FromContent("a.vue", []byte("<template></template>"), time.Now())
	require.NoError(t, err)
	assert.True(t, original.IsSFC())

	same, err := FromContent("a.vue", []byte("<template></template>"), time.Now())
	require.NoError(t, err)
	assert.False(t, same.ChangedSince(original))

	changed, err := FromContent("a.vue", []byte("<template>new</template>"), time.Now())
	require.NoError(t, err)
	assert.True(t, changed.ChangedSince(original))

	assert.True(t, original.ChangedSince(nil))
}
