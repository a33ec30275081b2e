package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ward-wallet/ward-wallet/internal/config"
	"github.com/ward-wallet/ward-wallet/internal/logger"
	"github.com/ward-wallet/ward-wallet/internal/metrics"
	"github.com/ward-wallet/ward-wallet/internal/middleware"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
)

// Server represents the HTTP server.
type Server struct {
	config       *config.Config
	service      WalletService
	sessionAuth  *middleware.SessionAuth
	guardianAuth *middleware.GuardianAuth
	rateLimiter  *middleware.RateLimiter
	wsHandler    http.HandlerFunc
	httpServer   *http.Server
}

// NewServer creates a new API server. wsHandler serves the activity bus
// WebSocket endpoint.
func NewServer(
	cfg *config.Config,
	service WalletService,
	sessionAuth *middleware.SessionAuth,
	guardianAuth *middleware.GuardianAuth,
	rateLimiter *middleware.RateLimiter,
	wsHandler http.HandlerFunc,
) *Server {
	return &Server{
		config:       cfg,
		service:      service,
		sessionAuth:  sessionAuth,
		guardianAuth: guardianAuth,
		rateLimiter:  rateLimiter,
		wsHandler:    wsHandler,
	}
}

// Handler builds the routed and middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Wallet onboarding carries a seed phrase, so only guardians may call it.
	mux.Handle("POST /v1/wallets", s.route("/v1/wallets",
		s.guardianAuth.Authenticate(http.HandlerFunc(s.handleCreateWallet))))

	mux.Handle("POST /v1/sessions", s.route("/v1/sessions",
		http.HandlerFunc(s.handleCreateSession)))

	mux.Handle("POST /v1/provider/rpc", s.route("/v1/provider/rpc",
		s.sessionAuth.Authenticate(http.HandlerFunc(s.handleProviderRPC))))

	mux.Handle("GET /v1/activities", s.route("/v1/activities",
		s.sessionAuth.Authenticate(http.HandlerFunc(s.handleListActivities))))

	mux.Handle("GET /v1/policies", s.route("/v1/policies",
		s.sessionAuth.Authenticate(http.HandlerFunc(s.handleGetPolicy))))

	mux.Handle("PUT /v1/policies", s.route("/v1/policies",
		s.guardianAuth.Authenticate(http.HandlerFunc(s.handleUpdatePolicy))))

	// The WebSocket upgrade hijacks the connection, so it skips the
	// instrumented wrapper.
	mux.HandleFunc("GET /v1/ws", s.wsHandler)

	return middleware.RequestID(s.loggingMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// route applies the per-route middleware common to every API endpoint.
func (s *Server) route(path string, h http.Handler) http.Handler {
	return metrics.Instrument(path, s.rateLimiter.Limit(middleware.LimitBody(h)))
}

// loggingMiddleware logs request start/finish with the request ID.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info(r.Context(), "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. Unknown errors are masked as
// internal to avoid leaking storage or node details.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.IsAppError(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.StatusCode)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": appErr})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": apperrors.ErrInternalError})
}
