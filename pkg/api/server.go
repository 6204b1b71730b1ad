package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davin/traceo/internal/observability"
	"github.com/davin/traceo/internal/tracing"
	"github.com/davin/traceo/pkg/conversation"
	"github.com/davin/traceo/pkg/session"
)

// Server is the conversation HTTP server
type Server struct {
	options        ServerOptions
	server         *http.Server
	orchestrator   *conversation.Orchestrator
	registry       *session.Registry
	broadcaster    *Broadcaster
	rateLimiter    *RateLimiter
	validator      *requestValidator
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new conversation server
func NewServer(options ServerOptions, orchestrator *conversation.Orchestrator, registry *session.Registry, broadcaster *Broadcaster, logger zerolog.Logger) (*Server, error) {
	// Set defaults
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}

	observability.EnsureRegistered()

	return &Server{
		options:      options,
		orchestrator: orchestrator,
		registry:     registry,
		broadcaster:  broadcaster,
		rateLimiter:  NewRateLimiter(options.RateLimitPerMinute),
		validator:    newRequestValidator(),
		logger:       logger,
		startTime:    time.Now(),
	}, nil
}

// Handler builds the routing table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversation", s.wrap("/conversation", s.handleCreateConversation))
	mux.HandleFunc("GET /conversation/{id}", s.wrap("/conversation/:id", s.handleGetConversation))
	mux.HandleFunc("GET /conversation/{id}/steps", s.wrap("/conversation/:id/steps", s.handleGetSteps))
	mux.HandleFunc("GET /conversation/{id}/summary", s.wrap("/conversation/:id/summary", s.handleGetSummary))
	mux.HandleFunc("GET /conversation/{id}/events", s.wrap("/conversation/:id/events", s.handleStreamEvents))
	mux.HandleFunc("GET /conversations", s.wrap("/conversations", s.handleListConversations))
	mux.HandleFunc("GET /healthz", s.wrap("/healthz", s.handleHealth))
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return mux
}

// Start starts the conversation server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting conversation server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start conversation server: %w", err)
	}

	return nil
}

// Stop gracefully stops the conversation server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down conversation server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	if s.broadcaster != nil {
		s.broadcaster.Close()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown conversation server: %w", err)
		}
	}

	s.logger.Info().Msg("Conversation server stopped")
	return nil
}

// wrap applies the shutdown gate, rate limit, request id, metrics and access
// logging around a handler. route is the normalized path used as a metrics
// label so session ids do not explode the cardinality.
func (s *Server) wrap(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		ip := s.getClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			retryAfter := s.rateLimiter.RetryAfter(ip)
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retryAfter", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		ctx := tracing.NewRequestContext(r.Context())
		logger := tracing.LoggerFromContext(ctx, s.logger)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r.WithContext(ctx))

		duration := time.Since(startTime)
		observability.RecordHTTPRequest(r.Method, route, recorder.status, duration)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", ip).
			Int("status", recorder.status).
			Dur("duration", duration).
			Msg("Request completed")
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// getClientIP extracts the client IP from the request
func (s *Server) getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
