// Package main implements the VersaCompile CLI.
//
// Usage:
//
//	versacompile watch               Compile once, then watch for changes and serve with HMR
//	versacompile all                 Compile every source file once
//	versacompile prod                Compile once with production transforms (minify, no HMR)
//	versacompile clean               Clear caches and compiled output
//	versacompile lint-only           Run configured linters only, no compilation
//	versacompile status [--json]     Show cache/resolver/worker-pool metrics
//	versacompile completion bash|zsh|fish
//	versacompile config              Show the resolved configuration
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds flags shared across subcommands.
type GlobalFlags struct {
	JSON       bool
	NoColor    bool
	Verbose    int
	ConfigPath string
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to versacompile.yaml (default: discovered by walking up from cwd)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
	)

	flag.SetInterspersed(false)
	flag.Usage = printUsage

	flag.Parse()

	if *showVersion {
		fmt.Printf("versacompile version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, ConfigPath: *configPath}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	var exitCode int
	switch command {
	case "watch":
		exitCode = runWatch(cmdArgs, globals)
	case "all":
		exitCode = runBuild(cmdArgs, globals, false)
	case "prod":
		exitCode = runBuild(cmdArgs, globals, true)
	case "clean":
		exitCode = runClean(cmdArgs, globals)
	case "lint-only":
		exitCode = runLintOnly(cmdArgs, globals)
	case "status":
		exitCode = runStatus(cmdArgs, globals)
	case "completion":
		exitCode = runCompletion(cmdArgs, globals)
	case "config":
		exitCode = runConfigCmd(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		flag.Usage()
		exitCode = 1
	}

	os.Exit(exitCode)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `VersaCompile - TypeScript/SFC build and dev server

Usage:
  versacompile <command> [options]

Commands:
  watch         Compile once, then watch for changes and serve with HMR
  all           Compile every source file once
  prod          Compile once with production transforms (minify, no HMR)
  clean         Clear caches and compiled output
  lint-only     Run configured linters only, no compilation
  status        Show cache/resolver/worker-pool metrics
  completion    Generate shell completion script (bash|zsh|fish)
  config        Show the resolved configuration

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -c, --config      Path to versacompile.yaml
  -V, --version     Show version and exit

`)
}
