package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dokpub/internal/history"
	"dokpub/internal/project"
	"dokpub/internal/trigger"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Rate limiting - requests per minute
	GlobalRateLimit  = 12
	WebhookRateLimit = 4
)

// Server receives GitHub webhooks and relays them as Dokploy deploy
// triggers.
type Server struct {
	Registry *project.Registry
	History  *history.History
	Trigger  *trigger.Client
	Locks    *LockManager
	Logger   *slog.Logger
	TestMode bool

	triggerWg sync.WaitGroup // tracks in-flight async triggers
}

// NewServer creates a new relay server instance.
func NewServer(registry *project.Registry, hist *history.History, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Registry: registry,
		History:  hist,
		Trigger:  trigger.NewClient(logger),
		Locks:    NewLockManager(),
		Logger:   logger,
		TestMode: testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, req)
		})
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/status/{projectName}", s.HandleStatus)

	// Webhook route with stricter rate limit
	if !s.TestMode {
		r.With(NewRateLimitMiddleware(WebhookRateLimit, s.Logger)).Post("/in/{projectName}", s.HandleWebhook)
	} else {
		r.Post("/in/{projectName}", s.HandleWebhook)
	}

	return r
}

// Start starts the HTTP server.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// WaitForTriggers waits for all in-flight async triggers to complete.
// This is primarily useful for testing.
func (s *Server) WaitForTriggers() {
	s.triggerWg.Wait()
}

// Shutdown waits for in-flight triggers and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.triggerWg.Wait()

	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
