package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/config"
)

// runClean implements the "clean" CLI mode: remove the compiled output
// directory so the next build starts from a cold cache.
func runClean(args []string, globals GlobalFlags) int {
	fset := flag.NewFlagSet("clean", flag.ExitOnError)
	_ = fset.Parse(args)

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}

	if _, err := os.Stat(cfg.CompilerOptions.OutDir); os.IsNotExist(err) {
		fmt.Printf("%s does not exist, nothing to clean\n", cfg.CompilerOptions.OutDir)
		return 0
	}

	if err := os.RemoveAll(cfg.CompilerOptions.OutDir); err != nil {
		clierr.FatalError(clierr.NewInternalError(
			"cannot remove output directory",
			cfg.CompilerOptions.OutDir,
			"check filesystem permissions",
			err,
		), globals.JSON)
		return 2
	}

	fmt.Printf("removed %s\n", cfg.CompilerOptions.OutDir)
	return 0
}
