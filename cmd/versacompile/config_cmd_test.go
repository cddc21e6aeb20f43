package main

import (
	"path/filepath"
	"testing"

	"github.com/kriollo/versacompile/pkg/config"
)

func TestRunConfigInit_WritesDefaultDocument(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "versacompile.yaml")

	exitCode := runConfigInit(GlobalFlags{ConfigPath: cfgPath})
	if exitCode != 0 {
		t.Fatalf("runConfigInit() exit code = %d, want 0", exitCode)
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load() after init error = %v", err)
	}
	if loaded.CompilerOptions.SourceRoot != "src" {
		t.Fatalf("loaded.CompilerOptions.SourceRoot = %q, want %q", loaded.CompilerOptions.SourceRoot, "src")
	}
}

// runConfigInit exits the process via clierr.FatalError when the target
// file already exists, so that branch isn't exercised here in-process.
