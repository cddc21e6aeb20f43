package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	flag "github.com/spf13/pflag"

	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/orchestrator"
)

// runBuild implements the "all" and "prod" CLI modes: walk the source
// tree once, fan out CompileFile calls, and print a summary.
func runBuild(args []string, globals GlobalFlags, production bool) int {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	concurrency := fset.IntP("concurrency", "j", 8, "Maximum number of files compiled concurrently")
	_ = fset.Parse(args)

	a, err := newApp(globals, production, false)
	if err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}
	defer a.close()

	failed, _, _, _ := buildAll(a, *concurrency, globals)
	if failed > 0 {
		return 1
	}
	return 0
}

// buildAll walks cfg.CompilerOptions.SourceRoot and fans out CompileFile
// across concurrency workers, reporting a summary to stdout. Shared by
// runBuild and runWatch's initial compile so the watch command doesn't
// stand up a second Resolver/Pool.
func buildAll(a *app, concurrency int, globals GlobalFlags) (failed, compiled, skipped int, failures []buildFileResult) {
	files, err := discoverSourceFiles(a.cfg.CompilerOptions.SourceRoot)
	if err != nil {
		clierr.FatalError(clierr.NewSourceReadFailed(a.cfg.CompilerOptions.SourceRoot, "check the sourceRoot path in your configuration", err), globals.JSON)
		return 2, 0, 0, nil
	}

	bar := newBuildProgressBar(len(files), globals)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(concurrency)

	resultsCh := make(chan buildFileResult, len(files))

	for _, f := range files {
		f := f
		g.Go(func() error {
			result := a.orch.CompileFile(ctx, f)
			resultsCh <- buildFileResult{path: f, result: result}
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(resultsCh)
	if bar != nil {
		_ = bar.Finish()
	}

	for r := range resultsCh {
		switch {
		case r.result.Err != nil:
			failed++
			failures = append(failures, r)
		case r.result.Skipped:
			skipped++
		default:
			compiled++
		}
	}

	printBuildSummary(compiled, skipped, failed, failures, globals)
	return failed, compiled, skipped, failures
}

type buildFileResult struct {
	path   string
	result orchestrator.CompileResult
}

func discoverSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".ts", ".sfc", ".vue", ".js":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func newBuildProgressBar(total int, globals GlobalFlags) *progressbar.ProgressBar {
	if globals.JSON || total == 0 || !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("compiling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionClearOnFinish(),
	)
}

func printBuildSummary(compiled, skipped, failed int, failures []buildFileResult, globals GlobalFlags) {
	if globals.JSON {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("%s %d compiled, %s %d skipped, %s %d failed\n",
		green("✓"), compiled, yellow("-"), skipped, red("✗"), failed)

	for _, f := range failures {
		fmt.Printf("  %s %s\n", red("✗"), f.path)
	}
}
