// Package server exposes the marketd HTTP + WebSocket API consumed by the
// community site.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/basedguardians/marketd/internal/domain"
	"github.com/basedguardians/marketd/internal/server/handler"
	"github.com/basedguardians/marketd/internal/server/middleware"
	"github.com/basedguardians/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // requests per window per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Operation *handler.OperationHandler
}

// Server is the headless HTTP + WebSocket API server for marketd.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and assembles the middleware chain: CORS on
// the outside, then request logging, auth, and the rate limiter closest to
// the handlers. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check, no auth required.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Read side: cached projections and fresh per-token reads.
	mux.HandleFunc("GET /api/market/listings", handlers.Market.ListListings)
	mux.HandleFunc("GET /api/market/listings/{id}", handlers.Market.GetListing)
	mux.HandleFunc("GET /api/market/offers/{id}/{offerer}", handlers.Market.GetOffer)
	mux.HandleFunc("GET /api/market/approval", handlers.Market.GetApproval)
	mux.HandleFunc("GET /api/market/floor", handlers.Market.GetFloor)
	mux.HandleFunc("GET /api/market/intents", handlers.Market.ListIntents)

	// Operation state machine.
	mux.HandleFunc("GET /api/market/operation", handlers.Operation.GetOperation)
	mux.HandleFunc("POST /api/market/operation/retry", handlers.Operation.Retry)
	mux.HandleFunc("POST /api/market/operation/reset", handlers.Operation.Reset)

	// Mutating marketplace calls.
	mux.HandleFunc("POST /api/market/approve", handlers.Operation.Approve)
	mux.HandleFunc("POST /api/market/list", handlers.Operation.List)
	mux.HandleFunc("POST /api/market/delist", handlers.Operation.Delist)
	mux.HandleFunc("POST /api/market/price", handlers.Operation.UpdatePrice)
	mux.HandleFunc("POST /api/market/buy", handlers.Operation.Buy)
	mux.HandleFunc("POST /api/market/offer", handlers.Operation.Offer)
	mux.HandleFunc("POST /api/market/offer/cancel", handlers.Operation.CancelOffer)
	mux.HandleFunc("POST /api/market/offer/accept", handlers.Operation.AcceptOffer)
	mux.HandleFunc("POST /api/market/refresh", handlers.Operation.Refresh)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving HTTP until the server errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
