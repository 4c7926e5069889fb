package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	dpmlog "github.com/sgajbi/lotus-advise-sub000/internal/obs/log"
)

// ServerConfig mirrors the teacher's ServerConfig shape
// (internal/interfaces/http/server.go), generalized from a local-only
// read-only dashboard to this service's read/write decisioning API.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the documented defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wraps the gorilla/mux router and the stdlib http.Server around it.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig
}

// NewServer builds a Server wired against deps, registering every route
// (spec §6).
func NewServer(config ServerConfig, deps Dependencies) *Server {
	router := mux.NewRouter()
	h := NewHandlers(deps)

	router.Use(requestIDMiddleware)
	router.Use(requestLoggingMiddleware)
	router.Use(timeoutMiddleware)

	api := router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	h.registerRoutes(api)

	router.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)
	router.Handle("/metrics", h.metricsHandler()).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return &Server{
		router: router,
		config: config,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start begins serving; blocks until the server stops.
func (s *Server) Start() error {
	dpmlog.Logger().Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	dpmlog.Logger().Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = r.Header.Get("X-Request-Id")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, correlationID)
		if correlationID != "" {
			w.Header().Set("X-Correlation-Id", correlationID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying ResponseWriter so a websocket upgrade
// (net/http.Hijacker) still works through this wrapper; embedding
// http.ResponseWriter alone does not promote Hijack since it isn't part of
// that interface.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		dpmlog.Logger().Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("correlation_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Msg("http request")
	})
}

// streamPath is exempt from the 30s request timeout: it's a long-lived
// websocket connection, not a request/response round trip.
const streamPath = "/rebalance/operations/stream"

func timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == streamPath {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
