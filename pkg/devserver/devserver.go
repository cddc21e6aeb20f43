// Package devserver implements the Dev Server Shim: an HTTP server that
// serves compiled output with HMR cache interception, falling through to
// either a static distribution directory or an upstream proxy.
package devserver

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kriollo/versacompile/pkg/hmr"
	"github.com/kriollo/versacompile/pkg/metrics"
	"github.com/kriollo/versacompile/pkg/store"
)

//go:embed assets/hmr-loader.js
var hmrLoaderJS []byte

// Config controls static/proxy fallback and optional metrics exposure.
type Config struct {
	Addr        string
	DistRoot    string // compiled output root: prefixes request paths for store and HMR lookups; static files come from here when ProxyURL is empty, or for assets when AssetsOmit is set
	ProxyURL    string // if set, the dev server proxies upstream instead of serving static files
	AssetsOmit  bool
	MetricsAddr string // empty disables the /metrics endpoint
}

// Server is the HTTP entry point fronting compiled output and HMR.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	tracker *hmr.Tracker
	store   *store.Store
	metrics *metrics.Registry

	httpServer    *http.Server
	metricsServer *http.Server
	proxy         *httputil.ReverseProxy
}

// New builds a Server. reg may be nil to disable the /metrics endpoint
// regardless of Config.MetricsAddr. out is the content-addressed output
// store compiled files land in; nil falls straight through to static
// files and the proxy, as if nothing had ever been compiled.
func New(cfg Config, tracker *hmr.Tracker, out *store.Store, reg *metrics.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger, tracker: tracker, store: out, metrics: reg}

	if cfg.ProxyURL != "" {
		target, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, err
		}
		s.proxy = httputil.NewSingleHostReverseProxy(target)
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.middleware(http.HandlerFunc(s.handle)))
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}

	if cfg.MetricsAddr != "" && reg != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", reg.Handler())
		s.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	}

	return s, nil
}

// middleware applies the boundary responsibilities: CORS on every
// response, and no-cache headers on .js responses.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if strings.HasSuffix(r.URL.Path, ".js") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	cleanPath := path.Clean(r.URL.Path)

	if cleanPath == "/__versa/hmr-loader.js" {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(hmrLoaderJS)
		return
	}

	if entry, ok := s.hmrEntryFor(cleanPath); ok {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(entry.JS)
		s.logger.Debug("devserver.hmr_intercept", "path", cleanPath)
		return
	}

	if s.store != nil {
		entry, ok := s.store.GetByOutputPath(cleanPath)
		if !ok {
			entry, ok = s.store.GetByOutputPath(path.Join(s.cfg.DistRoot, cleanPath))
		}
		if ok {
			w.Header().Set("Content-Type", contentTypeFor(cleanPath))
			w.Write(entry.Code)
			s.logger.Debug("devserver.store_hit", "path", cleanPath)
			return
		}
	}

	if s.proxy != nil {
		if s.cfg.AssetsOmit && isStaticAsset(cleanPath) {
			http.ServeFile(w, r, path.Join(s.cfg.DistRoot, cleanPath))
			return
		}
		s.proxy.ServeHTTP(w, r)
		return
	}

	http.ServeFile(w, r, path.Join(s.cfg.DistRoot, cleanPath))
}

// isStaticAsset reports whether requestPath looks like a compiled
// output or static asset rather than a page route, used to decide what
// AssetsOmit keeps off the upstream proxy.
func isStaticAsset(requestPath string) bool {
	switch strings.ToLower(path.Ext(requestPath)) {
	case ".js", ".mjs", ".css", ".map", ".svg", ".png", ".jpg", ".jpeg", ".gif", ".woff", ".woff2", ".ico":
		return true
	default:
		return false
	}
}

func contentTypeFor(requestPath string) string {
	switch strings.ToLower(path.Ext(requestPath)) {
	case ".css":
		return "text/css"
	case ".map":
		return "application/json"
	default:
		return "application/javascript"
	}
}

// hmrEntryFor reports whether requestPath matches an SFC's cached output
// path, per spec.md §4.5's "dev server interception".
func (s *Server) hmrEntryFor(requestPath string) (hmr.SFCCacheEntry, bool) {
	if s.tracker == nil {
		return hmr.SFCCacheEntry{}, false
	}
	entries := s.tracker.Snapshot()
	distPath := path.Join(s.cfg.DistRoot, requestPath)
	for _, e := range entries {
		if e.OutputPath == requestPath || strings.TrimPrefix(e.OutputPath, "/") == strings.TrimPrefix(requestPath, "/") || e.OutputPath == distPath {
			return e, true
		}
	}
	return hmr.SFCCacheEntry{}, false
}

// Start runs the HTTP server(s) in background goroutines.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("devserver.listen_failed", "error", err)
		}
	}()
	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("devserver.metrics_listen_failed", "error", err)
			}
		}()
	}
}

// Shutdown gracefully stops the server(s), part of the SIGINT contract's
// "stop the dev server" step.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	return s.httpServer.Shutdown(ctx)
}
