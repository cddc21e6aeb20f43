package cache

import "time"

const (
	defaultTransformMaxEntries = 200
	defaultTransformMaxBytes   = 50 * 1024 * 1024
	defaultParseMaxEntries     = 2000
	defaultResolutionMaxEntries = 5000
	defaultResolutionTTL        = 10 * time.Minute
	defaultTypeCheckMaxEntries  = 2000
)

// ParseCache memoises AST handles under a string key chosen by the
// caller; the orchestrator keys it by source path and checks the entry's
// ContentHash before reusing it.
type ParseCache struct{ *Plain[string, ParseEntry] }

// NewParseCache builds a Parse Cache with the documented default bound.
func NewParseCache() *ParseCache {
	return &ParseCache{NewPlain[string, ParseEntry](defaultParseMaxEntries)}
}

// TransformCache memoises pipeline runs keyed by
// sha256(code‖stage-names‖options), bounded by both entry count and byte
// footprint. Get returns a deep clone so callers can never alias the
// cached backing arrays.
type TransformCache struct{ *ByteBounded[string, TransformResult] }

// NewTransformCache builds a Transform Cache with the documented default
// bounds (200 entries, 50 MiB).
func NewTransformCache() *TransformCache {
	return &TransformCache{NewByteBounded[string, TransformResult](defaultTransformMaxEntries, defaultTransformMaxBytes)}
}

// Get returns a deep clone of the cached result, never the stored value
// itself.
func (c *TransformCache) Get(key string) (TransformResult, bool) {
	v, ok := c.ByteBounded.Get(key)
	if !ok {
		return TransformResult{}, false
	}
	return v.Clone(), true
}

// ResolutionCache memoises module/alias resolutions keyed by
// sha256(specifier‖fromFile), including negative results, each expiring
// after a configured TTL.
type ResolutionCache struct{ *TTL[string, ResolutionResult] }

// NewResolutionCache builds a Resolution Cache with the documented
// default bounds (5000 entries, 10 minute TTL).
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{NewTTL[string, ResolutionResult](defaultResolutionMaxEntries, defaultResolutionTTL)}
}

// TypeCheckCache memoises type-check outcomes keyed by content hash so an
// unchanged file is never redispatched to the worker pool.
type TypeCheckCache struct{ *Plain[string, TypeCheckResult] }

// NewTypeCheckCache builds a type-check memoisation cache with the
// documented default bound.
func NewTypeCheckCache() *TypeCheckCache {
	return &TypeCheckCache{NewPlain[string, TypeCheckResult](defaultTypeCheckMaxEntries)}
}

// Snapshot reports occupancy metrics for all four cache kinds at once.
// Each kind is owned privately by a different package (Orchestrator,
// Pipeline, Resolver, Pool); Snapshot is the transfer shape their
// CacheMetrics() accessors get assembled into for the status command
// and the Prometheus registry, not a cache either of them holds a
// reference to.
type Snapshot struct {
	Parse      Metrics
	Transform  Metrics
	Resolution Metrics
	TypeCheck  Metrics
}
