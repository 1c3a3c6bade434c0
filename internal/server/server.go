// Package server exposes the signing screens and a JSON API over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"docsign/internal/config"
	"docsign/internal/docsign"
	"docsign/internal/viewer"
)

//go:embed templates/*.html
var templateFS embed.FS

// Defaults for the viewer session cache.
const (
	defaultMaxViews = 256
	defaultViewTTL  = 30 * time.Minute
)

// Options configures a Server.
type Options struct {
	Signing       config.SigningConfig
	Viewer        viewer.Options
	MaxUploadSize int64

	// MaxViews bounds the number of cached viewer sessions. The least
	// recently used session is dropped first.
	MaxViews int

	// ViewTTL drops a viewer session that has not been used for this long.
	ViewTTL time.Duration
}

// view is a cached viewer session and the stored object it was loaded from.
type view struct {
	session    *viewer.Session
	storageKey string
}

// Server routes HTTP requests to the document service.
type Server struct {
	svc       *docsign.Service
	logger    docsign.Logger
	clock     docsign.Clock
	opts      Options
	templates *template.Template
	mux       *http.ServeMux

	viewsMu sync.Mutex
	views   *expirable.LRU[string, *view]
}

// New creates a Server and registers its routes.
func New(svc *docsign.Service, logger docsign.Logger, clock docsign.Clock, opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = docsign.DefaultOptions().MaxUploadSize
	}
	if opts.MaxViews <= 0 {
		opts.MaxViews = defaultMaxViews
	}
	if opts.ViewTTL <= 0 {
		opts.ViewTTL = defaultViewTTL
	}
	s := &Server{
		svc:       svc,
		logger:    logger,
		clock:     clock,
		opts:      opts,
		templates: tmpl,
		mux:       http.NewServeMux(),
		views:     expirable.NewLRU[string, *view](opts.MaxViews, nil, opts.ViewTTL),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /sign/{id}", s.handleSignScreen)
	s.mux.HandleFunc("GET /documents/{id}/confirmation", s.handleConfirmation)
	s.mux.HandleFunc("GET /files/{key...}", s.handleFile)

	s.mux.HandleFunc("POST /api/documents", s.handleUpload)
	s.mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("POST /api/documents/{id}/share", s.handleShare)
	s.mux.HandleFunc("POST /api/documents/{id}/sign", s.handleSign)
	s.mux.HandleFunc("GET /api/documents/{id}/pages/{page}", s.handleRenderPage)
	s.mux.HandleFunc("GET /api/notifications", s.handleListNotifications)
	s.mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", s.clock.Now().Sub(start))
	})
}

// redirectHome sends the browser to the index page with a message banner.
func redirectHome(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, "/?message="+url.QueryEscape(message), http.StatusSeeOther)
}
