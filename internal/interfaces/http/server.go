package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/config"
	"github.com/stridelabs/trainpulse/internal/interfaces/http/handlers"
)

// Server is the engine's HTTP surface: the decision endpoints plus the
// read models consumed by the presentation layer.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *handlers.Handlers
	config   config.ServerConfig
}

// NewServer wires routes and middleware around the handler set.
func NewServer(cfg config.ServerConfig, h *handlers.Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		config:   cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router exposes the configured router for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/interventions", s.handlers.ListInterventions).Methods(http.MethodGet)
	s.router.HandleFunc("/interventions/stats", s.handlers.Stats).Methods(http.MethodGet)
	s.router.HandleFunc("/interventions/decisions", s.handlers.BatchDecide).Methods(http.MethodPost)
	s.router.HandleFunc("/interventions/{id}/decision", s.handlers.Decide).Methods(http.MethodPost)
	s.router.HandleFunc("/sync", s.handlers.TriggerSync).Methods(http.MethodPost)

	s.router.HandleFunc("/athletes/{id}/training-load", s.handlers.TrainingLoad).Methods(http.MethodGet)
	s.router.HandleFunc("/athletes/{id}/fitness", s.handlers.Fitness).Methods(http.MethodGet)
	s.router.HandleFunc("/athletes/{id}/performance", s.handlers.Performance).Methods(http.MethodGet)

	s.router.HandleFunc("/ws/interventions", s.handlers.EventsWS).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade works behind the logging
// middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
