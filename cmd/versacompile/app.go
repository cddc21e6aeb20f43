package main

import (
	"log/slog"
	"os"

	"github.com/kriollo/versacompile/pkg/cache"
	"github.com/kriollo/versacompile/pkg/config"
	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/metrics"
	"github.com/kriollo/versacompile/pkg/orchestrator"
	"github.com/kriollo/versacompile/pkg/resolver"
	"github.com/kriollo/versacompile/pkg/store"
	"github.com/kriollo/versacompile/pkg/transform"
	"github.com/kriollo/versacompile/pkg/typecheck"
)

// app bundles the wired-together core packages one CLI invocation needs.
// Built once per process by newApp and shared across the subcommand that
// was dispatched to.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	res     *resolver.Resolver
	pipe    *transform.Pipeline
	pool    *typecheck.Pool
	tracker *hmr.Tracker
	orch    *orchestrator.Orchestrator
	reg     *metrics.Registry
	store   *store.Store
}

func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// newApp loads configuration and wires the Resolver, Transform Pipeline,
// Type-Check Worker Pool, HMR Tracker, and Compile Orchestrator together so
// every subcommand shares one instance per invocation instead of each
// constructing its own. production controls the transform stage order and
// the resolver's production entry bias; watchMode sizes the worker pool
// for watch mode instead of batch mode.
func newApp(globals GlobalFlags, production bool, watchMode bool) (*app, error) {
	logger := newLogger(globals)

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, err
	}

	resCfg := resolver.DefaultConfig()
	resCfg.SourceRoot = cfg.CompilerOptions.SourceRoot
	resCfg.DistRoot = cfg.CompilerOptions.OutDir
	resCfg.ProductionMode = production
	if len(cfg.CompilerOptions.WellKnownRoots) > 0 {
		resCfg.WellKnownRoots = cfg.CompilerOptions.WellKnownRoots
	}
	res := resolver.New(resCfg, logger)
	if len(cfg.CompilerOptions.PathsAlias) > 0 {
		aliasPatterns := make(map[string][]string, len(cfg.CompilerOptions.PathsAlias))
		for pattern, target := range cfg.CompilerOptions.PathsAlias {
			aliasPatterns[pattern] = []string{target}
		}
		res.SetAliases(aliasPatterns)
	}
	if err := res.BuildModuleIndex(); err != nil {
		logger.Warn("resolver.index_build_failed", "error", err)
	}

	pipe := transform.New(logger)

	mode := typecheck.ModeBatch
	if watchMode {
		mode = typecheck.ModeWatch
	}
	poolCfg := typecheck.DefaultConfig(mode)
	pool := typecheck.NewPool(poolCfg, typecheck.PoolSize(mode), logger)

	tracker := hmr.New(res, cfg.CompilerOptions.SourceRoot, cfg.CompilerOptions.OutDir, logger)
	out := store.New()

	orchCfg := orchestrator.Config{
		SourceRoot:      cfg.CompilerOptions.SourceRoot,
		DistRoot:        cfg.CompilerOptions.OutDir,
		Production:      production,
		TypeCheck:       true,
		TypeCheckPolicy: orchestrator.TypeCheckPolicy(cfg.CompilerOptions.TypeCheckPolicy),
	}
	orch := orchestrator.New(orchCfg, res, pipe, pool, tracker, out, logger)

	reg := metrics.New()

	return &app{
		cfg:     cfg,
		logger:  logger,
		res:     res,
		pipe:    pipe,
		pool:    pool,
		tracker: tracker,
		orch:    orch,
		reg:     reg,
		store:   out,
	}, nil
}

// close releases the worker pool. Call once the CLI command has finished
// all compiles; safe to call even if the pool was never dispatched to.
func (a *app) close() {
	a.pool.Shutdown()
}

// installMetricsRefreshHook wires the registry to pull a fresh snapshot
// from the Resolver, Worker Pool, and every cache right before each
// /metrics scrape, rather than publishing whatever values happened to be
// set at startup.
func (a *app) installMetricsRefreshHook() {
	a.reg.SetRefreshHook(func() {
		a.reg.RefreshResolver(a.res.Metrics())
		a.reg.RefreshPool(a.pool.Metrics(), a.pool.Size(), a.pool.BusyCount())
		a.reg.RefreshCaches(cache.Snapshot{
			Parse:      a.orch.CacheMetrics(),
			Transform:  a.pipe.CacheMetrics(),
			Resolution: a.res.CacheMetrics(),
			TypeCheck:  a.pool.CacheMetrics(),
		})
	})
}
