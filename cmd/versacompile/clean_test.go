package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kriollo/versacompile/pkg/config"
)

func TestRunClean_RemovesOutDir(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "dist")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "a.js"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfgPath := filepath.Join(dir, "versacompile.yaml")
	cfg := config.DefaultConfig()
	cfg.CompilerOptions.SourceRoot = filepath.Join(dir, "src")
	cfg.CompilerOptions.OutDir = outDir
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	exitCode := runClean(nil, GlobalFlags{ConfigPath: cfgPath})
	if exitCode != 0 {
		t.Fatalf("runClean() exit code = %d, want 0", exitCode)
	}

	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", outDir, err)
	}
}

func TestRunClean_NoOutDirIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "versacompile.yaml")
	cfg := config.DefaultConfig()
	cfg.CompilerOptions.SourceRoot = filepath.Join(dir, "src")
	cfg.CompilerOptions.OutDir = filepath.Join(dir, "does-not-exist")
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	exitCode := runClean(nil, GlobalFlags{ConfigPath: cfgPath})
	if exitCode != 0 {
		t.Fatalf("runClean() exit code = %d, want 0", exitCode)
	}
}
