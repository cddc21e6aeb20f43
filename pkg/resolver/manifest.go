package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// manifestFile is the on-disk package manifest VersaCompile reads when
// building the Module Index — a package.json-shaped document carrying
// the entry-point fields the selection priority order consults.
type manifestFile struct {
	Name    string          `json:"name"`
	Module  string          `json:"module"`
	Main    string          `json:"main"`
	Browser json.RawMessage `json:"browser"`
	Exports json.RawMessage `json:"exports"`
	MTime   int64           `json:"-"`
}

func readManifest(dir string) (*manifestFile, error) {
	path := filepath.Join(dir, "package.json")
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.MTime = info.ModTime().UnixMilli()
	return &m, nil
}

// browserString returns the "browser" field's value when it is a plain
// string (as opposed to a per-file replacement map).
func (m *manifestFile) browserString() (string, bool) {
	if len(m.Browser) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(m.Browser, &s); err != nil {
		return "", false
	}
	return s, true
}

// exportsDot resolves the "." condition of the exports field, preferring
// import, then browser, then default, matching the module index build
// rule. It also reports whether exports existed at all (hasExports).
func (m *manifestFile) exportsDot() (value string, hasExports bool) {
	if len(m.Exports) == 0 {
		return "", false
	}
	hasExports = true

	var asString string
	if err := json.Unmarshal(m.Exports, &asString); err == nil {
		return asString, true
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(m.Exports, &asMap); err != nil {
		return "", true
	}

	if dot, ok := asMap["."]; ok {
		if v, ok := conditionValue(dot, "import", "browser", "default"); ok {
			return v, true
		}
	}
	// Some packages put the conditions at the top level without a "."
	// subpath when the package has no subpath exports at all.
	if v, ok := conditionValue(m.Exports, "import", "browser", "default"); ok {
		return v, true
	}
	return "", true
}

// exportsSubpath resolves exports["./"+subpath] the same way exportsDot
// resolves the "." condition.
func (m *manifestFile) exportsSubpath(subpath string) (string, bool) {
	if len(m.Exports) == 0 {
		return "", false
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(m.Exports, &asMap); err != nil {
		return "", false
	}
	key := "./" + subpath
	raw, ok := asMap[key]
	if !ok {
		return "", false
	}
	return conditionValue(raw, "import", "default")
}

// developmentCondition looks for exports.development / exports.import /
// exports.browser / exports.default, used by the development-bias rule.
func (m *manifestFile) developmentCondition() (string, bool) {
	if len(m.Exports) == 0 {
		return "", false
	}
	return conditionValue(m.Exports, "development", "import", "browser", "default")
}

// conditionValue tries to unmarshal raw as a plain string first, falling
// back to a condition object and returning the first key present from
// preference, in order.
func conditionValue(raw json.RawMessage, preference ...string) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, key := range preference {
		if v, ok := obj[key]; ok {
			if s, ok := conditionValue(v, preference...); ok {
				return s, true
			}
		}
	}
	return "", false
}
