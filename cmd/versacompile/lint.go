package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"

	flag "github.com/spf13/pflag"

	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/config"
)

// runLintOnly implements the "lint-only" CLI mode: run every configured
// linter subprocess without compiling anything, per spec.md §6's
// {watch, all, prod, clean, lint-only} mode set.
func runLintOnly(args []string, globals GlobalFlags) int {
	fset := flag.NewFlagSet("lint-only", flag.ExitOnError)
	_ = fset.Parse(args)

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}

	if len(cfg.Linter) == 0 {
		fmt.Println("no linters configured")
		return 0
	}

	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	var anyFailed bool
	for _, l := range cfg.Linter {
		args := append([]string{}, l.Paths...)
		if l.Fix {
			args = append(args, "--fix")
		}
		if l.ConfigFile != "" {
			args = append(args, "--config", l.ConfigFile)
		}
		cmd := exec.Command(l.Bin, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err := cmd.Run()
		if err != nil {
			anyFailed = true
			fmt.Printf("%s %s: %v\n", red("✗"), l.Name, err)
			continue
		}
		fmt.Printf("%s %s\n", green("✓"), l.Name)
	}

	if anyFailed {
		return 1
	}
	return 0
}
