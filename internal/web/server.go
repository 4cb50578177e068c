// Package web hosts the browser build: a loader script for injection into
// the Jellyfin web client, the wasm bundle, health and metrics endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/web/middleware"
)

const (
	// BundleFile is the compiled engine inside the assets directory.
	BundleFile = "vidprev.wasm"
	// RuntimeFile is the Go wasm support script shipped with the toolchain.
	RuntimeFile = "wasm_exec.js"
)

// Options configures the asset server.
type Options struct {
	Addr string
	// Assets holds BundleFile and RuntimeFile. Nil serves no assets.
	Assets fs.FS
	// PublicURL is the externally visible base URL. When empty the loader
	// derives it from the request host.
	PublicURL string
	// Preview is embedded in the loader as the default configuration.
	Preview config.Preview
	// ServerURL, when set, pins the Jellyfin address for every client.
	ServerURL string
	LogLevel  string

	AllowedNet      *net.IPNet
	ShutdownTimeout time.Duration
}

// Server represents the web server
type Server struct {
	opts   Options
	router *chi.Mux
	loader *loader
}

// NewServer creates a new web server
func NewServer(opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = config.GetTimeouts().Shutdown
	}
	s := &Server{
		opts:   opts,
		router: chi.NewRouter(),
		loader: newLoader(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/vidprev.js", s.handleLoader)

	if s.opts.Assets != nil {
		files := http.StripPrefix("/assets/", http.FileServer(http.FS(s.opts.Assets)))
		r.With(chimiddleware.SetHeader("Cache-Control", "no-cache")).Handle("/assets/*", files)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Bundle bool   `json:"bundle"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Bundle: s.hasBundle()}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode health response")
	}
}

func (s *Server) hasBundle() bool {
	if s.opts.Assets == nil {
		return false
	}
	for _, name := range []string{BundleFile, RuntimeFile} {
		if _, err := fs.Stat(s.opts.Assets, name); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) handleLoader(w http.ResponseWriter, r *http.Request) {
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	err := s.loader.render(w, loaderData{
		AssetBase: base + "/assets",
		Config:    s.clientConfig(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render loader script")
	}
}

// clientConfig is the configuration the loader hands to the wasm engine.
func (s *Server) clientConfig() map[string]string {
	cfg := s.opts.Preview.Values()
	if s.opts.ServerURL != "" {
		cfg[config.OverrideServerURL] = s.opts.ServerURL
	}
	if s.opts.LogLevel != "" {
		cfg[config.OverrideLogLevel] = s.opts.LogLevel
	}
	return cfg
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:        s.opts.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Bool("bundle", s.hasBundle()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	}
}
