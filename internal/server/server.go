package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/GriffinCanCode/copilot/internal/client"
	"github.com/GriffinCanCode/copilot/internal/config"
	handlers "github.com/GriffinCanCode/copilot/internal/http"
	"github.com/GriffinCanCode/copilot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copilot/internal/middleware"
	"github.com/GriffinCanCode/copilot/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Options carries the collaborators of a Server.
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	CORS     *middleware.CORSConfig
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	logger *zap.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, copilot *client.Client, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	corsCfg := middleware.DefaultCORSConfig()
	if opts.CORS != nil {
		corsCfg = *opts.CORS
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(middleware.CORS(corsCfg))
	switch {
	case cfg.RateLimit.Enabled && cfg.RateLimit.Global:
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	case cfg.RateLimit.Enabled:
		router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
	}

	h := handlers.NewHandlers(copilot, opts.Metrics, logger)
	wsHandler := ws.NewHandler(copilot, opts.Metrics, logger, allowOrigin(corsCfg.AllowOrigins))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		api.GET("/conversations", h.ListConversations)
		api.POST("/conversations", h.CreateConversation)
		api.POST("/conversations/delete", h.DeleteConversations)
		api.PUT("/conversations/:id", h.RenameConversation)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.GET("/conversations/:id/messages", h.Messages)
		api.POST("/ask", h.Ask)
		api.POST("/images", h.DrawImage)
	}

	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{router: router, cfg: cfg, logger: logger}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting Copilot bridge", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// allowOrigin mirrors the CORS origin list for WebSocket upgrades.
func allowOrigin(origins []string) func(string) bool {
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	return func(origin string) bool {
		for _, o := range origins {
			if o == origin {
				return true
			}
		}
		return false
	}
}
