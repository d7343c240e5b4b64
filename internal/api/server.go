// Package api provides the zhconv REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FocuswithJustin/zhconv/core/cache"
	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/internal/logging"
	"github.com/FocuswithJustin/zhconv/internal/server"
	"github.com/FocuswithJustin/zhconv/internal/workerpool"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

// Server serves text and document conversion over HTTP.
type Server struct {
	cfg     Config
	conv    *convert.Converter
	hub     *Hub
	jobs    *JobStore
	results *cache.ResultCache
	pool    *workerpool.Pool[*Job, jobOutcome]
	started time.Time

	ctx  context.Context
	stop context.CancelFunc

	submitMu sync.Mutex
	closed   bool
	queued   atomic.Int64

	handler http.Handler
}

// NewServer validates cfg and starts the WebSocket hub and the job
// workers. Close releases them.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		conv:    cfg.Converter,
		hub:     NewHub(),
		jobs:    NewJobStore(),
		results: cache.NewResultCache(cfg.MaxResults, cfg.MaxResultBytes, cfg.ResultTTL),
		pool:    workerpool.New[*Job, jobOutcome](cfg.JobWorkers, cfg.JobQueueSize),
		started: time.Now(),
		ctx:     ctx,
		stop:    stop,
	}
	go s.hub.Run(ctx)
	s.pool.Start(s.runJob)
	go s.collectResults()

	s.handler = s.buildHandler(ctx)
	return s, nil
}

// Handler returns the HTTP handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close cancels active jobs, stops the job workers and disconnects
// WebSocket clients.
func (s *Server) Close() {
	s.submitMu.Lock()
	if s.closed {
		s.submitMu.Unlock()
		return
	}
	s.closed = true
	s.submitMu.Unlock()

	s.jobs.CancelAll()
	s.pool.Close()
	s.stop()
}

// routes configures all HTTP routes.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/configs", s.handleConfigs)
	mux.HandleFunc("/convert", s.handleConvert)
	mux.HandleFunc("/detect", s.handleDetect)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.Handle("/ws", SecureWebSocketHandler(s.hub, webSocketSecurity(s.cfg), NewWebSocketRateLimiter()))

	return mux
}

// buildHandler wraps the routes, innermost first: security headers,
// authentication, rate limiting, CORS, timing and request logging.
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	var handler http.Handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), s.routes())

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", true,
			"note", "API key required")
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if s.cfg.RateLimitRequests > 0 {
		rateLimitConfig := RateLimiterConfig{
			RequestsPerMinute: s.cfg.RateLimitRequests,
			BurstSize:         s.cfg.RateLimitBurst,
			DocumentCost:      5,
		}
		handler = NewRateLimiter(ctx, rateLimitConfig).Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", rateLimitConfig.RequestsPerMinute,
			"burst_size", rateLimitConfig.BurstSize)
	}

	handler = server.CORSMiddleware(server.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}, handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*)")
	}

	return logging.CombinedMiddleware(server.TimingMiddleware(handler))
}

// httpServer builds the listener-side server. Errors the net/http package
// reports itself, such as TLS handshake failures, go to the structured
// logger at warn level.
func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.GetLogger().Handler(), slog.LevelWarn),
	}
}

// Start runs the API server until ctx is done, then shuts down
// gracefully.
func Start(ctx context.Context, cfg Config) error {
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg = s.cfg

	protocol := "http"
	wsProtocol := "ws"
	if cfg.TLS.Enabled {
		protocol = "https"
		wsProtocol = "wss"
		logging.Info("TLS enabled", "cert_file", server.AbsPath(cfg.TLS.CertFile))
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("rest_api", protocol, cfg.Port,
		"websocket_protocol", wsProtocol,
		"configs", len(s.conv.ListConfigs()),
		"job_workers", s.pool.Workers())

	srv := s.httpServer()

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
