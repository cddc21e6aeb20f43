// Package sourcefile models a single source file as it flows through the
// compile pipeline: its path, extension, modification time, and
// content hash.
package sourcefile

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SourceFile is the unit of work the Orchestrator, caches, and Watcher
// pass around. Hash is the sha256 of Content, hex-encoded, and is what
// ChangedSince compares.
type SourceFile struct {
	Path      string
	Extension string
	ModTime   time.Time
	Size      int64
	Hash      string
	Content   []byte
}

// New reads path from disk and computes its hash. Extension is the
// lowercased suffix including the leading dot ("" if none).
func New(path string) (*SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromContent(path, content, info.ModTime())
}

// FromContent builds a SourceFile from already-read bytes, useful when the
// Watcher has debounced a change and already holds the new content, or in
// tests that synthesize sources without touching disk.
func FromContent(path string, content []byte, modTime time.Time) (*SourceFile, error) {
	sum := sha256.Sum256(content)
	return &SourceFile{
		Path:      path,
		Extension: strings.ToLower(filepath.Ext(path)),
		ModTime:   modTime,
		Size:      int64(len(content)),
		Hash:      hex.EncodeToString(sum[:]),
		Content:   content,
	}, nil
}

// IsSFC reports whether the extension denotes a single-file component
// (template/script/style composition). Both ".sfc" (the canonical
// extension used by compiled output path rewriting) and ".vue" (the
// extension used by package-manifest-resolved component specifiers)
// are recognized.
func (s *SourceFile) IsSFC() bool {
	switch s.Extension {
	case ".sfc", ".vue":
		return true
	default:
		return false
	}
}

// IsTypeScript reports whether the extension is .ts or .tsx; the
// orchestrator type-checks such files. Only ".ts" selects the type-strip
// stage order; ".tsx" files take the plain JS chain.
func (s *SourceFile) IsTypeScript() bool {
	switch s.Extension {
	case ".ts", ".tsx":
		return true
	default:
		return false
	}
}

// ChangedSince reports whether other has a different content hash than s,
// the basis for cache invalidation and HMR change detection.
func (s *SourceFile) ChangedSince(other *SourceFile) bool {
	if other == nil {
		return true
	}
	return s.Hash != other.Hash
}
