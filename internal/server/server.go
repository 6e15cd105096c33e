// Package server hosts the sandbox proxy: a guarded reverse proxy to the
// upstream API plus the small control surface the explorer uses to read and
// toggle its policy flags.
package server

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clearid-dev/sandbox-guard/guard"
	"github.com/clearid-dev/sandbox-guard/internal/log"
	"github.com/clearid-dev/sandbox-guard/pkg/httpguard"
	"github.com/clearid-dev/sandbox-guard/store"
)

// Server is the sandbox proxy HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	guard  *guard.Guard
	store  store.Store
	addr   string
}

// New builds the router. Every route except the control surface goes through
// the guard and on to the upstream origin.
func New(addr string, g *guard.Guard, st store.Store, upstream *url.URL) *Server {
	s := &Server{
		router: chi.NewRouter(),
		guard:  g,
		store:  st,
		addr:   addr,
	}

	s.router.Use(requestID)
	s.router.Use(requestLogger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/sandbox/flags", func(r chi.Router) {
		r.Get("/", s.handleGetFlags)
		r.Put("/", s.handlePutFlags)
	})

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Logger().Error("upstream request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}
	s.router.Handle("/*", httpguard.Wrap(g, proxy))

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Logger().Info("sandbox proxy listening", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
