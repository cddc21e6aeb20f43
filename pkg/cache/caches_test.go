package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBounded_EvictsOnByteCap(t *testing.T) {
	c := NewByteBounded[string, TransformResult](100, 10)

	c.Put("a", TransformResult{Code: []byte("12345")})
	c.Put("b", TransformResult{Code: []byte("67890")})
	_, ok := c.Get("a")
	assert.True(t, ok, "a should still fit under the 10 byte cap")

	c.Put("c", TransformResult{Code: []byte("abcde")})
	_, ok = c.Get("b")
	assert.False(t, ok, "b, least recently used after the Get of a, should have been evicted to make room for c")

	m := c.Metrics()
	assert.LessOrEqual(t, m.Bytes, int64(10))
}

func TestTransformCache_GetReturnsClone(t *testing.T) {
	c := NewTransformCache()
	c.Put("key", TransformResult{Code: []byte("hello"), Dependencies: []string{"./a.ts"}})

	got, ok := c.Get("key")
	require.True(t, ok)
	got.Code[0] = 'X'
	got.Dependencies[0] = "mutated"

	again, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "hello", string(again.Code), "mutating a returned clone must not affect the stored entry")
	assert.Equal(t, "./a.ts", again.Dependencies[0])
}

func TestTTL_ExpiresEntries(t *testing.T) {
	c := NewTTL[string, ResolutionResult](10, time.Millisecond)
	c.Put("spec", ResolutionResult{ResolvedPath: "/src/foo.ts", Found: true})

	_, ok := c.Get("spec")
	assert.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get("spec")
	assert.False(t, ok, "entry should have expired")
}

func TestPlain_HitMissMetrics(t *testing.T) {
	c := NewPlain[string, ParseEntry](5)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", ParseEntry{Path: "a.ts"})
	_, ok = c.Get("a")
	assert.True(t, ok)

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
}

func TestSnapshot_CarriesAllFourCacheKinds(t *testing.T) {
	parse := NewParseCache()
	parse.Put("a", ParseEntry{Path: "a.ts"})
	transform := NewTransformCache()
	transform.Put("b", TransformResult{Code: []byte("x")})

	snap := Snapshot{Parse: parse.Metrics(), Transform: transform.Metrics()}
	assert.Equal(t, 1, snap.Parse.Entries)
	assert.Equal(t, 1, snap.Transform.Entries)
}
