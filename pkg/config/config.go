// Package config loads and validates the VersaCompile project configuration
// file (versacompile.yaml or .versacompile/project.yaml).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kriollo/versacompile/pkg/clierr"
)

const (
	defaultConfigDir  = ".versacompile"
	defaultConfigFile = "project.yaml"
	rootConfigFile    = "versacompile.yaml"
)

// Config is the top-level project configuration document.
type Config struct {
	CompilerOptions CompilerOptions `yaml:"compilerOptions"`
	ProxyConfig     ProxyConfig     `yaml:"proxyConfig,omitempty"`
	AditionalWatch  []string        `yaml:"aditionalWatch,omitempty"`
	TailwindConfig  TailwindConfig  `yaml:"tailwindConfig,omitempty"`
	Linter          []LinterConfig  `yaml:"linter,omitempty"`
	Bundlers        []BundlerConfig `yaml:"bundlers,omitempty"`
}

// CompilerOptions controls module resolution, output layout, and the
// type-check policy consumed by the orchestrator.
type CompilerOptions struct {
	SourceRoot      string            `yaml:"sourceRoot"`
	OutDir          string            `yaml:"outDir"`
	PathsAlias      map[string]string `yaml:"pathsAlias,omitempty"`
	WellKnownRoots  []string          `yaml:"wellKnownRoots,omitempty"`
	TypeCheckPolicy string            `yaml:"typeCheckPolicy,omitempty"` // "block" | "warn"
}

// ProxyConfig describes an upstream HTTP server the dev server shim falls
// through to when a request cannot be served from the content-addressed
// store. Proxying is enabled by setting ProxyURL; there is no separate
// enabled flag to fall out of sync with it.
type ProxyConfig struct {
	ProxyURL   string `yaml:"proxyUrl,omitempty"`
	AssetsOmit bool   `yaml:"assetsOmit,omitempty"`
}

// TailwindConfig names the Tailwind CSS binary and its input/output CSS
// paths. The values are loaded and shown by the config command; no build
// step runs the binary.
type TailwindConfig struct {
	Bin    string `yaml:"bin,omitempty"`
	Input  string `yaml:"input,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// LinterConfig names an external lint command to run as part of the
// lint-only CLI mode.
type LinterConfig struct {
	Name       string   `yaml:"name"`
	Bin        string   `yaml:"bin"`
	ConfigFile string   `yaml:"configFile,omitempty"`
	Fix        bool     `yaml:"fix,omitempty"`
	Paths      []string `yaml:"paths,omitempty"`
}

// BundlerConfig names an external bundler and its input/output files. The
// entries are loaded and shown by the config command; no command runs a
// bundler.
type BundlerConfig struct {
	Name       string `yaml:"name"`
	FileInput  string `yaml:"fileInput"`
	FileOutput string `yaml:"fileOutput"`
}

// DefaultConfig returns the documented defaults for a fresh project.
func DefaultConfig() *Config {
	return &Config{
		CompilerOptions: CompilerOptions{
			SourceRoot:      "src",
			OutDir:          "dist",
			PathsAlias:      map[string]string{},
			WellKnownRoots:  []string{"examples", "src", "app", "lib"},
			TypeCheckPolicy: "block",
		},
		AditionalWatch: []string{},
	}
}

// Load reads and validates the configuration at path. If path is empty it
// is discovered by walking up from the working directory, preferring
// ./versacompile.yaml then ./.versacompile/project.yaml at each level.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.NewConfigInvalid(
			fmt.Sprintf("cannot read %s", path),
			"check the file exists and is readable",
			err,
		)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, clierr.NewConfigInvalid(
			"YAML parsing failed",
			fmt.Sprintf("fix the syntax errors in %s", path),
			err,
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and normalizes defaults for fields the
// YAML document left unset.
func (c *Config) Validate() error {
	if c.CompilerOptions.SourceRoot == "" {
		return clierr.NewConfigInvalid("compilerOptions.sourceRoot is required", "set sourceRoot in the config document", nil)
	}
	if c.CompilerOptions.OutDir == "" {
		return clierr.NewConfigInvalid("compilerOptions.outDir is required", "set outDir in the config document", nil)
	}
	if len(c.CompilerOptions.WellKnownRoots) == 0 {
		c.CompilerOptions.WellKnownRoots = []string{"examples", "src", "app", "lib"}
	}
	switch c.CompilerOptions.TypeCheckPolicy {
	case "":
		c.CompilerOptions.TypeCheckPolicy = "block"
	case "block", "warn":
	default:
		return clierr.NewConfigInvalid(
			fmt.Sprintf("unknown typeCheckPolicy %q", c.CompilerOptions.TypeCheckPolicy),
			`must be "block" or "warn"`,
			nil,
		)
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return clierr.NewInternalError("cannot encode configuration", "YAML marshaling failed", "", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return clierr.NewInternalError("cannot create configuration directory", dir, "check directory permissions", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return clierr.NewInternalError("cannot write configuration file", path, "check file permissions and disk space", err)
	}
	return nil
}

// ProjectConfigPath returns <dir>/.versacompile/project.yaml.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

func findConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", clierr.NewInternalError("cannot access working directory", "", "", err)
	}

	for {
		root := filepath.Join(dir, rootConfigFile)
		if _, err := os.Stat(root); err == nil {
			return root, nil
		}
		nested := ProjectConfigPath(dir)
		if _, err := os.Stat(nested); err == nil {
			return nested, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", clierr.NewConfigInvalid(
		"no versacompile.yaml or .versacompile/project.yaml found",
		"run versacompile config --init to create one",
		nil,
	)
}
