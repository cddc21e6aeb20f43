package main

import (
	"path/filepath"
	"testing"

	"github.com/kriollo/versacompile/pkg/config"
)

func TestRunLintOnly_NoLintersConfiguredSucceeds(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "versacompile.yaml")
	if err := config.Save(config.DefaultConfig(), cfgPath); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	exitCode := runLintOnly(nil, GlobalFlags{ConfigPath: cfgPath})
	if exitCode != 0 {
		t.Fatalf("runLintOnly() exit code = %d, want 0", exitCode)
	}
}

func TestRunLintOnly_RunsConfiguredLintersAndReportsFailure(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "versacompile.yaml")
	cfg := config.DefaultConfig()
	cfg.Linter = []config.LinterConfig{
		{Name: "ok", Bin: "true"},
		{Name: "broken", Bin: "false"},
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatalf("config.Save() error = %v", err)
	}

	exitCode := runLintOnly(nil, GlobalFlags{ConfigPath: cfgPath})
	if exitCode != 1 {
		t.Fatalf("runLintOnly() exit code = %d, want 1", exitCode)
	}
}
