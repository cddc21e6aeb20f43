package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kriollo/versacompile/pkg/config"
)

func TestRunStatus_SucceedsWithFreshProject(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcRoot, 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfgPath := filepath.Join(dir, "versacompile.yaml")
	cfg := config.DefaultConfig()
	cfg.CompilerOptions.SourceRoot = srcRoot
	cfg.CompilerOptions.OutDir = filepath.Join(dir, "dist")
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	exitCode := runStatus(nil, GlobalFlags{ConfigPath: cfgPath, JSON: true})
	if exitCode != 0 {
		t.Fatalf("runStatus() exit code = %d, want 0", exitCode)
	}
}
