// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/docsift"
)

// Retriever is the part of *docsift.Pipeline the server needs.
type Retriever interface {
	Retrieve(ctx context.Context, req docsift.Request) (*docsift.Document, error)
	RetrieveMany(ctx context.Context, reqs []docsift.Request, concurrency int) docsift.BatchResult
	Probe(ctx context.Context, req docsift.Request) (*docsift.Document, error)
}

// Options tune the HTTP surface.
type Options struct {
	// MaxBatch caps the number of URLs accepted by /batch.
	MaxBatch int
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// OCR and Browser are reported by /health.
	OCR     bool
	Browser bool
}

// Server routes HTTP requests to a Retriever.
type Server struct {
	r      Retriever
	opts   Options
	router *mux.Router
}

// New creates a server and registers its routes.
func New(r Retriever, opts Options) *Server {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 50
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{r: r, opts: opts, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(loggingMiddleware)
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/smart-scrape", s.handleSmartScrape).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/batch", s.handleBatch).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/fetch", s.handleFetch).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
