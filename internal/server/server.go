// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/productos-api/internal/config"
	"github.com/vyrodovalexey/productos-api/internal/handler"
	"github.com/vyrodovalexey/productos-api/internal/middleware"
	"github.com/vyrodovalexey/productos-api/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	logger     *zap.Logger
	wsHandler  *handler.WebSocketHandler
}

// New creates a new Server instance serving products from productStore.
func New(cfg *config.Config, logger *zap.Logger, productStore store.Store) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes(productStore)
	s.setupHandler()
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain run for matched routes.
func (s *Server) setupMiddleware() {
	// First listed = outermost
	chain := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
	}

	if s.config.MetricsEnabled {
		chain = append(chain, middleware.Metrics())
	}

	chain = append(chain, middleware.Logging(s.logger))

	if s.config.RateLimitEnabled() {
		limiter := rate.NewLimiter(rate.Limit(s.config.RateLimitRPS), s.config.EffectiveRateLimitBurst())
		chain = append(chain, middleware.RateLimit(limiter, s.logger))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Chain(chain...)))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(productStore store.Store) {
	var opts []handler.Option

	if s.config.WebSocketEnabled {
		s.wsHandler = handler.NewWebSocketHandler(s.logger, s.config.AllowedOrigins()...)
		s.wsHandler.RegisterRoutes(s.router)
		opts = append(opts, handler.WithNotifier(s.wsHandler))
	}

	opts = append(opts, handler.WithStrictNotFound(s.config.StrictNotFound))
	restHandler := handler.NewRESTHandler(productStore, s.logger, opts...)
	restHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHandler wraps the router with CORS. mux skips its own middleware when
// no route matches the method, so preflight requests are answered out here.
func (s *Server) setupHandler() {
	s.handler = s.router

	origins := s.config.AllowedOrigins()
	if len(origins) == 0 {
		return
	}

	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		middleware.RequestIDHeader,
	}

	s.handler = middleware.CORS(origins, allowedMethods, allowedHeaders)(s.router)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.String("store_driver", s.config.StoreDriver),
		zap.String("data_file_path", s.config.DataFilePath),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("websocket_enabled", s.config.WebSocketEnabled),
		zap.Bool("strict_not_found", s.config.StrictNotFound),
		zap.Float64("rate_limit_rps", s.config.RateLimitRPS),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
