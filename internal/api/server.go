// Package api serves one opened source over HTTP: file facts, column
// profiles, statistics, correlation, preview and export.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
	"github.com/KaramelBytes/fileflow-cli/internal/transform"
)

// MaxBodySize caps request bodies; rule lists are small.
const MaxBodySize = 1 << 20

// Options carries the settings handlers need.
type Options struct {
	Workers    int
	SampleRows int
	Ties       correlation.TiePolicy
	Missing    correlation.MissingPolicy
	Transform  transform.Options
	// ExportDir receives POST /api/export output; empty means the source's
	// directory.
	ExportDir      string
	RequestTimeout time.Duration
}

// Server is the HTTP front end for a single source file.
type Server struct {
	src    *dataset.File
	opt    Options
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server for src.
func NewServer(src *dataset.File, opt Options) *Server {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 5 * time.Minute
	}
	s := &Server{src: src, opt: opt, router: chi.NewRouter()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opt.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/columns", s.handleColumns)
		r.Get("/columns/{index}/stats", s.handleColumnStats)
		r.Get("/correlation", s.handleCorrelation)
		r.Post("/preview", s.handlePreview)
		r.Post("/export", s.handleExport)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logging.FromContext(context.Background()).Info("starting server", "addr", addr, "source", s.src.Path())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestLogger logs one line per request through slog, tagged with the
// chi request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
