// Package api provides the HTTP status and claim endpoints for the listener.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/creator-rewards/internal/circuitbreaker"
	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/metrics"
	"github.com/creator-rewards/internal/models"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service interfaces for dependency injection and testing

// ClaimServiceInterface defines the claim operations the API exposes.
type ClaimServiceInterface interface {
	ListPending(ctx context.Context, wallet string) ([]*models.CollectibleToken, error)
	Claim(ctx context.Context, wallet string, tokenID int64) (*models.CollectibleToken, error)
}

// BreakerStatsSource reports the asset service circuit breaker state.
type BreakerStatsSource interface {
	GetStats() *circuitbreaker.Stats
}

// Pinger checks backing store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	metrics      *metrics.ListenerMetrics
	claimService ClaimServiceInterface
	breaker      BreakerStatsSource
	db           Pinger
	gatherer     prometheus.Gatherer
	config       *ServerConfig
	logger       *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance. The breaker, db, and gatherer
// arguments are optional; missing ones drop the matching status fields.
func NewServer(
	config *ServerConfig,
	listenerMetrics *metrics.ListenerMetrics,
	claimService ClaimServiceInterface,
	breaker BreakerStatsSource,
	db Pinger,
	gatherer prometheus.Gatherer,
	logger *logging.Logger,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:       mux.NewRouter(),
		metrics:      listenerMetrics,
		claimService: claimService,
		breaker:      breaker,
		db:           db,
		gatherer:     gatherer,
		config:       config,
		logger:       logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/wallets/{wallet}/claims", s.handleListClaims).Methods("GET")
	api.HandleFunc("/wallets/{wallet}/claims/{tokenId}", s.handleClaim).Methods("POST")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
