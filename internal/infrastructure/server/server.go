package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/wavetermdev/waveterm-sub010/internal/api/http"
	"github.com/wavetermdev/waveterm-sub010/internal/api/middleware"
	"github.com/wavetermdev/waveterm-sub010/internal/api/ws"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/config"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/monitoring"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and its routes.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	hub     *hub.Hub
	tracer  *tracing.Tracer
	logger  *zap.Logger
	config  *config.Config
}

// NewServer builds the router for h. The hub stays owned by the caller.
func NewServer(cfg *config.Config, h *hub.Hub, logger *zap.Logger) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	tracer := tracing.New("wavesrv", 1000, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(h.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))

	handlers := apihttp.NewHandlers(h, logger)
	wsHandler := ws.NewHandler(h, tracer, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	router.GET("/metrics/json", handlers.MetricsJSON)

	// WebSocket, authenticated by its first watchscreen frame
	router.GET("/ws", wsHandler.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.AuthKey(h.AuthKey))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(rl))
	}

	// Remotes
	api.GET("/remotes", handlers.ListRemotes)
	api.POST("/remotes", handlers.CreateRemote)
	api.DELETE("/remotes/:id", handlers.KillRemote)
	api.POST("/remotes/:id/state", handlers.PostState)

	// User input
	api.POST("/userinput", handlers.RequestUserInput)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout.D(),
	}
	return &Server{
		router:  router,
		httpSrv: httpSrv,
		hub:     h,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked websocket connections are not tracked by net/http.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	err := s.httpSrv.Shutdown(ctx)
	s.tracer.Close()
	return err
}
