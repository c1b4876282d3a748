// Package api serves the desk over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/exchange"
	"tradedesk/internal/meme"
	"tradedesk/internal/metrics"
	"tradedesk/internal/notify"
	"tradedesk/internal/trading"
)

// Handler holds the dependencies of every route.
type Handler struct {
	logger   *slog.Logger
	engine   *trading.Engine
	repo     database.Repository
	notifier *notify.Notifier
	radar    *meme.Radar
	sources  []exchange.PriceSource
	topN     int
}

// NewHandler creates a new Handler. repo and radar may be nil, in which case
// trade replay and the meme radar are unavailable. topN bounds the
// opportunities in the status view.
func NewHandler(logger *slog.Logger, engine *trading.Engine, repo database.Repository, notifier *notify.Notifier, radar *meme.Radar, sources []exchange.PriceSource, topN int) *Handler {
	if topN <= 0 {
		topN = 5
	}
	return &Handler{logger: logger, engine: engine, repo: repo, notifier: notifier, radar: radar, sources: sources, topN: topN}
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(logger *slog.Logger, cfg config.ServerConfig, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger), rateLimit(cfg.RateLimitPerMinute, cfg.RateLimitBurst))

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/enhanced_status", h.enhancedStatus)
		api.POST("/start_enhanced_trading", h.startTrading)
		api.POST("/stop_enhanced_trading", h.stopTrading)
		api.POST("/execute_enhanced_trade", h.executeTrade)
		api.POST("/execute_arbitrage", h.executeArbitrage)
		api.GET("/market_analysis/:symbol", h.marketAnalysis)
		api.GET("/auto_mode", h.autoMode)
		api.POST("/activate_auto_mode", h.activateAutoMode)
		api.GET("/trade_replay", h.tradeReplay)
		api.POST("/notifications/webhook", h.registerWebhook)
		api.GET("/notifications/status", h.notificationStatus)
		api.GET("/meme_radar", h.memeRadar)
	}
	return r
}

// Server wraps the http.Server lifecycle.
type Server struct {
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a Server listening on port.
func NewServer(logger *slog.Logger, port int, handler http.Handler) *Server {
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server: listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("Server: stopped")
	return nil
}
