package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kriollo/versacompile/pkg/clierr"
	"github.com/kriollo/versacompile/pkg/devserver"
	"github.com/kriollo/versacompile/pkg/watcher"
)

// runWatch implements the "watch" CLI mode: compile the tree once, start
// the dev server, then watch for changes until SIGINT/SIGTERM.
func runWatch(args []string, globals GlobalFlags) int {
	fset := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fset.String("addr", ":5173", "Dev server listen address")
	proxyURL := fset.String("proxy", "", "Upstream URL to proxy instead of serving the dist directory")
	metricsAddr := fset.String("metrics-addr", "", "Listen address for the /metrics endpoint (disabled if empty)")
	_ = fset.Parse(args)

	a, err := newApp(globals, false, true)
	if err != nil {
		clierr.FatalError(err, globals.JSON)
		return 2
	}
	defer a.close()

	if *proxyURL == "" {
		*proxyURL = a.cfg.ProxyConfig.ProxyURL
	}

	if failed, _, _, _ := buildAll(a, 8, globals); failed > 0 {
		a.logger.Warn("watch.initial_build_had_failures", "failed", failed)
	}

	watchCfg := watcher.DefaultConfig(a.cfg.CompilerOptions.SourceRoot)
	w, err := watcher.New(watchCfg, a.orch, a.tracker, a.logger)
	if err != nil {
		clierr.FatalError(clierr.NewInternalError("cannot start watcher", err.Error(), "check the sourceRoot path and filesystem permissions", err), globals.JSON)
		return 2
	}

	a.installMetricsRefreshHook()

	srvCfg := devserver.Config{
		Addr:        *addr,
		DistRoot:    a.cfg.CompilerOptions.OutDir,
		ProxyURL:    *proxyURL,
		AssetsOmit:  a.cfg.ProxyConfig.AssetsOmit,
		MetricsAddr: *metricsAddr,
	}
	srv, err := devserver.New(srvCfg, a.tracker, a.store, a.reg, a.logger)
	if err != nil {
		clierr.FatalError(clierr.NewInternalError("cannot start dev server", err.Error(), "check --proxy is a valid URL", err), globals.JSON)
		return 2
	}
	srv.Start()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("versacompile: shutting down...")
		cancel()
	}()

	fmt.Printf("versacompile watching %s, serving on http://localhost%s\n", a.cfg.CompilerOptions.SourceRoot, *addr)

	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if runErr != nil {
		clierr.FatalError(clierr.NewInternalError("watcher stopped unexpectedly", runErr.Error(), "", runErr), globals.JSON)
		return 1
	}
	return 0
}
