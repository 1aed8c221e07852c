// Package server provides the HTTP API for restaurant questions.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/menurag/internal/answer"
	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Answerer produces an answer for a question. It never fails; errors become an apology text.
type Answerer interface {
	Answer(ctx context.Context, question string) string
}

// Status describes the loaded catalog and similarity index.
type Status struct {
	CatalogSource  string `json:"catalog_source"`
	CatalogSize    int    `json:"catalog_size"`
	IndexType      string `json:"index_type"`
	IndexSize      int    `json:"index_size"`
	DiskUsageBytes int64  `json:"disk_usage_bytes,omitempty"`
}

// StatusFunc reports the current Status.
type StatusFunc func(ctx context.Context) (Status, error)

// Server is the HTTP server for the restaurant question API.
type Server struct {
	answerer Answerer
	searcher answer.Searcher
	status   StatusFunc
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. status may be nil.
func NewServer(
	answerer Answerer,
	searcher answer.Searcher,
	status StatusFunc,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		answerer: answerer,
		searcher: searcher,
		status:   status,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
}

// Handler returns the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	timeout := 60 * time.Second
	if s.config != nil && s.config.RequestTimeout > 0 {
		timeout = time.Duration(s.config.RequestTimeout) * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/restaurant-query", s.handleQuery)

	return otelhttp.NewHandler(r, "menurag")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
