package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	flag "github.com/spf13/pflag"

	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/config"
)

// runConfigCmd implements `versacompile config`: shows the resolved
// configuration document. CompilerOptions carries no secrets, so unlike
// some config dumps there is nothing to redact here.
func runConfigCmd(args []string, globals GlobalFlags) int {
	fset := flag.NewFlagSet("config", flag.ExitOnError)
	initFlag := fset.Bool("init", false, "Write a default versacompile.yaml in the current directory")
	_ = fset.Parse(args)

	if *initFlag {
		return runConfigInit(globals)
	}

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cfg)
		return 0
	}

	printConfigHuman(cfg)
	return 0
}

func runConfigInit(globals GlobalFlags) int {
	path := "versacompile.yaml"
	if globals.ConfigPath != "" {
		path = globals.ConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		clierr.FatalError(clierr.NewConfigInvalid(
			fmt.Sprintf("%s already exists", path),
			"remove it first or pass --config to target a different path",
			nil,
		), globals.JSON)
		return 2
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}

	abs, _ := filepath.Abs(path)
	fmt.Printf("wrote %s\n", abs)
	return 0
}

func printConfigHuman(cfg *config.Config) {
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Println(bold("VersaCompile Configuration"))
	fmt.Printf("  Source root:       %s\n", cfg.CompilerOptions.SourceRoot)
	fmt.Printf("  Out dir:           %s\n", cfg.CompilerOptions.OutDir)
	fmt.Printf("  Type-check policy: %s\n", cfg.CompilerOptions.TypeCheckPolicy)
	fmt.Printf("  Well-known roots:  %v\n", cfg.CompilerOptions.WellKnownRoots)
	if len(cfg.CompilerOptions.PathsAlias) > 0 {
		fmt.Println("  Path aliases:")
		for pattern, target := range cfg.CompilerOptions.PathsAlias {
			fmt.Printf("    %s -> %s\n", pattern, target)
		}
	}
	if cfg.ProxyConfig.ProxyURL != "" {
		fmt.Printf("  Proxy:             %s\n", cfg.ProxyConfig.ProxyURL)
		if cfg.ProxyConfig.AssetsOmit {
			fmt.Println("  Proxy assets:      omitted (served from dist instead)")
		}
	}
	if cfg.TailwindConfig.Bin != "" {
		fmt.Printf("  Tailwind bin:      %s\n", dim(cfg.TailwindConfig.Bin))
		fmt.Printf("  Tailwind input:    %s\n", cfg.TailwindConfig.Input)
		fmt.Printf("  Tailwind output:   %s\n", cfg.TailwindConfig.Output)
	}
	if len(cfg.Linter) > 0 {
		fmt.Println("  Linters:")
		for _, l := range cfg.Linter {
			fmt.Printf("    %s: %s %v (fix=%v)\n", l.Name, l.Bin, l.Paths, l.Fix)
		}
	}
	if len(cfg.Bundlers) > 0 {
		fmt.Println("  Bundlers:")
		for _, b := range cfg.Bundlers {
			fmt.Printf("    %s: %s -> %s\n", b.Name, b.FileInput, b.FileOutput)
		}
	}
}
