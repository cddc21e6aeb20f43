package cache

// ParseEntry memoises an AST handle for a source by (path, mtime,
// content-hash). The pipeline in this implementation does not own a real
// AST — parsing is delegated to external collaborators — so Handle is an
// opaque value produced by whatever stage first needed a parse, kept only
// to prove the memoisation contract.
type ParseEntry struct {
	Path        string
	ModTimeUnix int64
	ContentHash string
	Handle      any
}

// TransformResult is the cached output of one Transform Pipeline
// invocation: the compiled code, its source-map chain, and the set of
// module specifiers it imports.
type TransformResult struct {
	Code         []byte
	SourceMap    string // data-URL encoded JSON metadata chain, see pkg/transform
	Dependencies []string
	HMRDeps      map[string]string // specifier -> hmr-instrument placeholder, kept separate from Dependencies
	StageNames   []string
}

// ByteSize reports the cached footprint used by the Transform Cache's
// byte cap.
func (t TransformResult) ByteSize() int {
	n := len(t.Code) + len(t.SourceMap)
	for _, d := range t.Dependencies {
		n += len(d)
	}
	for _, s := range t.StageNames {
		n += len(s)
	}
	return n
}

// Clone deep-copies a TransformResult so cache hits never alias the
// stored entry's backing arrays to a caller that might mutate them.
func (t TransformResult) Clone() TransformResult {
	code := make([]byte, len(t.Code))
	copy(code, t.Code)
	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	stages := make([]string, len(t.StageNames))
	copy(stages, t.StageNames)
	var hmrDeps map[string]string
	if t.HMRDeps != nil {
		hmrDeps = make(map[string]string, len(t.HMRDeps))
		for k, v := range t.HMRDeps {
			hmrDeps[k] = v
		}
	}
	return TransformResult{Code: code, SourceMap: t.SourceMap, Dependencies: deps, HMRDeps: hmrDeps, StageNames: stages}
}

// ResolutionResult is the cached outcome of a module or alias resolution,
// including negative results (ResolvedPath == "" means "not found" and is
// itself cached to avoid repeated failed filesystem probes).
type ResolutionResult struct {
	ResolvedPath string
	Found        bool
	HitCount     uint64
}

// TypeCheckResult memoises the outcome of type-checking one file so an
// unchanged dependency graph doesn't re-dispatch to the worker pool.
type TypeCheckResult struct {
	OK       bool
	Errors   []string
	Warnings []string
}
