package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/dispatch"
	"github.com/mattjoyce/relayd/internal/events"
)

// ActionLister reports the registered action names.
type ActionLister interface {
	Actions() []string
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	ActiveSessions(ctx context.Context) (int, error)
}

// Publisher sends a notification to subscribers.
type Publisher interface {
	Publish(notifType string, data map[string]any, topic string) error
}

// EventSource is the read side of the event hub.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// DispatchStats reports request loop counters.
type DispatchStats interface {
	Stats() dispatch.Stats
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the single full-access bearer token.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server is the admin HTTP API.
type Server struct {
	config    Config
	actions   ActionLister
	sessions  SessionCounter
	publisher Publisher
	events    EventSource
	dispatch  DispatchStats
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	keepAlive time.Duration
}

// New creates an API server. Nothing listens until Start.
func New(config Config, actions ActionLister, sessions SessionCounter, publisher Publisher, source EventSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		actions:   actions,
		sessions:  sessions,
		publisher: publisher,
		events:    source,
		logger:    logger,
		startedAt: time.Now(),
		keepAlive: 15 * time.Second,
	}
}

// WithDispatch adds the request loop counters to /healthz.
func (s *Server) WithDispatch(d DispatchStats) *Server {
	s.dispatch = d
	return s
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("actions:ro")).Get("/actions", s.handleActions)
		r.With(s.requireScopes("events:ro")).Get("/events", s.handleEventSnapshot)
		r.With(s.requireScopes("events:ro")).Get("/events/stream", s.handleEventStream)
		r.With(s.requireScopes("notify:rw")).Post("/notify", s.handleNotify)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
