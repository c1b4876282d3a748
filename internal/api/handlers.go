package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"tradedesk/internal/arbitrage"
	"tradedesk/internal/model"
	"tradedesk/internal/notify"
	"tradedesk/internal/trading"
)

const (
	statusTrades = 20
	replayLimit  = 50
	replayWindow = 7 * 24 * time.Hour
)

func (h *Handler) health(c *gin.Context) {
	live, simulated := 0, 0
	for _, s := range h.sources {
		if s.Live() {
			live++
		} else {
			simulated++
		}
	}
	markets := h.engine.Markets()
	symbols := make([]string, len(markets))
	for i, m := range markets {
		symbols[i] = m.Symbol
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"trading_active": h.engine.Active(),
		"mode":           h.mode(),
		"sources":        gin.H{"live": live, "simulated": simulated},
		"markets":        symbols,
		"uptime_seconds": int64(h.engine.Uptime().Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

func (h *Handler) mode() string {
	if h.engine.AutoMode() {
		return "auto"
	}
	return "manual"
}

func (h *Handler) enhancedStatus(c *gin.Context) {
	snap := h.engine.Snapshot()
	var session *trading.Session
	if s, ok := h.engine.Session(); ok {
		session = &s
	}
	c.JSON(http.StatusOK, gin.H{
		"session":                 session,
		"portfolio":               h.engine.Recorder.Portfolio(),
		"ai_signals":              snap.Signals,
		"arbitrage_opportunities": arbitrage.Top(snap.Opportunities, h.topN),
		"recent_trades":           h.engine.Recorder.History(statusTrades),
		"prices":                  snap.Prices,
		"auto_mode":               h.engine.Selector.Status(),
		"trading_active":          h.engine.Active(),
		"mode":                    h.mode(),
		"last_update":             snap.UpdatedAt,
	})
}

type startRequest struct {
	Budget    *float64 `json:"budget"`
	Strategy  string   `json:"strategy"`
	RiskLevel string   `json:"risk_level"`
}

func (h *Handler) startTrading(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	session := trading.Session{Budget: 200, Strategy: "arbitrage", RiskLevel: "medium"}
	if req.Budget != nil {
		session.Budget = *req.Budget
	}
	if req.Strategy != "" {
		session.Strategy = req.Strategy
	}
	if req.RiskLevel != "" {
		session.RiskLevel = req.RiskLevel
	}

	if err := h.engine.Start(session); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Enhanced trading started with $%.0f budget using %s strategy", session.Budget, session.Strategy),
	})
}

func (h *Handler) stopTrading(c *gin.Context) {
	h.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Enhanced trading stopped"})
}

func (h *Handler) executeTrade(c *gin.Context) {
	var intent trading.TradeIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	trade, err := h.engine.ExecuteTrade(c.Request.Context(), intent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("%s $%.2f %s at $%.4f | Profit: $%.2f (%.2f%%)",
			strings.ToUpper(string(trade.Side)), trade.AmountUSD, trade.Symbol, trade.Price, trade.Profit, trade.ProfitPct),
		"trade": trade,
	})
}

func (h *Handler) executeArbitrage(c *gin.Context) {
	var req trading.ArbitrageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	buy, sell, err := h.engine.ExecuteArbitrage(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Arbitrage executed successfully",
		"trades":  []model.Trade{*buy, *sell},
	})
}

func (h *Handler) marketAnalysis(c *gin.Context) {
	symbol := strings.ToUpper(strings.NewReplacer("-", "/", "_", "/").Replace(c.Param("symbol")))
	market, ok := h.engine.Market(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Symbol not found"})
		return
	}

	snap := h.engine.Snapshot()
	resp := gin.H{
		"symbol": symbol,
		"market": market,
		"prices": snap.Prices[symbol],
	}
	if avg, ok := snap.Prices.Mean(symbol); ok {
		resp["average_price"] = model.Round(avg, 4)
	}
	for _, s := range snap.Signals {
		if s.Symbol == symbol {
			resp["signal"] = s
			break
		}
	}
	opps := make([]model.Opportunity, 0)
	for _, o := range snap.Opportunities {
		if o.Symbol == symbol {
			opps = append(opps, o)
		}
	}
	resp["opportunities"] = opps
	resp["last_update"] = snap.UpdatedAt
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) autoMode(c *gin.Context) {
	snap := h.engine.Snapshot()
	status := h.engine.Selector.Status()
	c.JSON(http.StatusOK, gin.H{
		"enabled":              h.engine.AutoMode(),
		"current_strategy":     status.CurrentStrategy,
		"recommended_strategy": snap.Decision,
		"market_conditions":    snap.Conditions,
		"status":               status,
	})
}

func (h *Handler) activateAutoMode(c *gin.Context) {
	h.engine.ActivateAutoMode()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Auto mode activated"})
}

func (h *Handler) tradeReplay(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Trade store not configured"})
		return
	}
	limit := replayLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, replayLimit)
	}

	ctx := c.Request.Context()
	trades, err := h.repo.RecentTrades(ctx, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.repo.Stats(ctx, time.Now().Add(-replayWindow))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"trades":              trades,
		"count":               len(trades),
		"performance_metrics": stats,
	})
}

type webhookRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *Handler) registerWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "url is required")
		return
	}
	if err := h.notifier.Register(req.URL); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook registered"})
}

func (h *Handler) notificationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"webhooks":      h.notifier.Webhooks(),
		"notifications": h.notifier.History(statusTrades),
		"event_types":   []notify.EventType{notify.EventTradeExecuted, notify.EventStrategyChanged},
	})
}

func (h *Handler) memeRadar(c *gin.Context) {
	if h.radar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Meme radar not configured"})
		return
	}
	report, err := h.radar.Report(c.Request.Context())
	if err != nil {
		h.logger.Warn("API: meme radar unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Market data unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// fail maps domain errors to 400 and everything else to 500.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *trading.ValidationError
	switch {
	case errors.As(err, &verr):
		badRequest(c, err.Error())
	case errors.Is(err, trading.ErrInsufficientBalance):
		badRequest(c, "Insufficient balance")
	case errors.Is(err, trading.ErrBelowMinimumBudget):
		badRequest(c, err.Error())
	default:
		h.logger.Error("API: request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
	}
}
