// Package api serves the Coindle stats endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/feed"
	"github.com/MJE43/coindle/internal/scoretoken"
	"github.com/MJE43/coindle/internal/stats"
)

// Aggregator is the stats engine behind the endpoints.
type Aggregator interface {
	Submit(ctx context.Context, sub scoretoken.Submission) (stats.Snapshot, error)
	Query(ctx context.Context, score int) (stats.Snapshot, error)
	Summary(ctx context.Context) (stats.Snapshot, error)
	Today() calendar.Day
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Aggregator Aggregator
	// Store is checked by the readiness probe. Optional.
	Store Pinger
	// Feed serves GET /api/v1/feed when set.
	Feed *feed.Hub
	// AllowedOrigins feeds CORS. Empty allows any origin.
	AllowedOrigins []string
	// RequestTimeout bounds non-streaming requests. Defaults to 30 seconds.
	RequestTimeout time.Duration
	// LogOutput receives the API and security logs. Defaults to stdout.
	LogOutput io.Writer
}

// Server handles HTTP requests
type Server struct {
	agg            Aggregator
	store          Pinger
	hub            *feed.Hub
	origins        []string
	timeout        time.Duration
	errorHandler   *ErrorHandler
	logger         *log.Logger
	securityLogger *SecurityLogger
	startTime      time.Time
	httpServer     *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := log.New(out, "[API] ", log.LstdFlags|log.Lshortfile)
	securityLogger := NewSecurityLogger(out)

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Server{
		agg:            opts.Aggregator,
		store:          opts.Store,
		hub:            opts.Feed,
		origins:        opts.AllowedOrigins,
		timeout:        timeout,
		errorHandler:   NewErrorHandler(logger, securityLogger),
		logger:         logger,
		securityLogger: securityLogger,
		startTime:      time.Now(),
	}
}

// SecurityLogger exposes the server's audit logger for startup and shutdown events.
func (s *Server) SecurityLogger() *SecurityLogger {
	return s.securityLogger
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(corsHandler(s.origins))
	r.Use(VersionHeaderMiddleware)

	// Health endpoints
	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))
			r.Post("/scores", s.handleSubmit)
			r.Get("/stats", s.handleStatsQuery)
			r.Get("/stats/{score}", s.handleStats)
			r.Get("/version", s.handleVersion)
		})
		if s.hub != nil {
			r.Get("/feed", s.handleFeed)
		}
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d error=%q", status, err)
	}
}

// Start binds addr and serves Routes in a goroutine. It returns once the socket is bound,
// with the bound address (useful when addr ends in ":0").
func (s *Server) Start(addr string) (net.Addr, error) {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("serve_failed addr=%s error=%q", addr, err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown gracefully stops the HTTP server. Open feed connections are not waited on;
// stop the hub to close them.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
