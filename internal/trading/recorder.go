package trading

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
)

// ProfitModel decides the simulated outcome of a trade, in percent of its USD amount.
type ProfitModel interface {
	ProfitPct(strategy model.StrategyName, confidence float64) float64
}

// TradeNotifier is told about every recorded trade.
type TradeNotifier interface {
	TradeExecuted(trade model.Trade)
}

// SimulatedProfit draws outcomes per strategy: arbitrage U(0.3,1.8),
// ai_signal U(-0.5, confidence/20), anything else U(-1.5,2.5).
type SimulatedProfit struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedProfit creates a profit model; a nil rng is seeded randomly.
func NewSimulatedProfit(rng *rand.Rand) *SimulatedProfit {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SimulatedProfit{rng: rng}
}

func (p *SimulatedProfit) ProfitPct(strategy model.StrategyName, confidence float64) float64 {
	lo, hi := -1.5, 2.5
	switch strategy {
	case model.StrategyArbitrage:
		lo, hi = 0.3, 1.8
	case model.StrategyAISignal:
		lo, hi = -0.5, confidence/20
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Float64()*(hi-lo)
}

// Recorder owns the simulated portfolio and the in-memory trade log.
type Recorder struct {
	logger   *slog.Logger
	cfg      config.TradingConfig
	repo     database.Repository
	profit   ProfitModel
	notifier TradeNotifier
	now      func() time.Time

	mu        sync.Mutex
	portfolio model.Portfolio
	log       []model.Trade
	realized  []realizedProfit
	nextID    int64
}

// realizedProfit is one sell's profit, kept for the rolling 24h figure
// independently of the capped trade log.
type realizedProfit struct {
	at  time.Time
	usd float64
}

// NewRecorder creates a Recorder starting at the configured initial balance.
// repo and notifier may be nil.
func NewRecorder(logger *slog.Logger, cfg config.TradingConfig, repo database.Repository, profit ProfitModel, notifier TradeNotifier) *Recorder {
	if cfg.TradeLogCap <= 0 {
		cfg.TradeLogCap = 50
	}
	metrics.SetBalance(cfg.InitialBalance)
	return &Recorder{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		profit:    profit,
		notifier:  notifier,
		now:       time.Now,
		portfolio: model.Portfolio{Balance: cfg.InitialBalance},
	}
}

// Record validates the intent, applies it to the portfolio at price and
// persists the resulting trade. Persistence failures are logged only.
func (r *Recorder) Record(ctx context.Context, intent TradeIntent, price float64) (model.Trade, error) {
	start := r.now()

	if intent.Strategy == "" {
		intent.Strategy = model.StrategyManual
	}
	if err := Validate(intent); err != nil {
		return model.Trade{}, err
	}
	if intent.Source == "" {
		return model.Trade{}, &ValidationError{Field: "exchange", Reason: "is required"}
	}
	if math.IsInf(intent.AmountUSD, 0) {
		return model.Trade{}, &ValidationError{Field: "amount_usd", Reason: "must be finite"}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.Trade{}, &ValidationError{Field: "price", Reason: "must be a positive number"}
	}

	amount := math.Max(intent.AmountUSD, r.cfg.MinTradeUSD)
	profitPct := r.profit.ProfitPct(intent.Strategy, intent.Confidence)
	profit := amount * profitPct / 100

	r.mu.Lock()
	if intent.Side == model.SideBuy && amount > r.portfolio.Balance {
		balance := r.portfolio.Balance
		r.mu.Unlock()
		r.logger.Warn("Recorder: buy rejected", "symbol", intent.Symbol, "amount_usd", amount, "balance", balance)
		return model.Trade{}, ErrInsufficientBalance
	}

	realized := 0.0
	if intent.Side == model.SideBuy {
		r.portfolio.Balance -= amount
	} else {
		realized = profit
		r.portfolio.Balance += amount + profit
		r.portfolio.ProfitLive += profit
	}
	r.portfolio.TotalTrades++
	if profit > 0 {
		r.portfolio.SuccessfulTrades++
	}

	r.nextID++
	now := r.now()
	trade := model.Trade{
		ID:            r.nextID,
		Timestamp:     now,
		Source:        intent.Source,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Amount:        model.Round(amount/price, 6),
		Price:         model.Round(price, 4),
		AmountUSD:     model.Round(amount, 2),
		Profit:        model.Round(realized, 2),
		ProfitPct:     model.Round(profitPct, 3),
		Strategy:      intent.Strategy,
		Confidence:    intent.Confidence,
		ExecutionTime: model.Round(now.Sub(start).Seconds(), 3),
	}
	r.log = append(r.log, trade)
	if over := len(r.log) - r.cfg.TradeLogCap; over > 0 {
		r.log = append(r.log[:0:0], r.log[over:]...)
	}
	if trade.Profit != 0 {
		r.realized = append(r.realized, realizedProfit{at: now, usd: trade.Profit})
	}
	r.portfolio.Profit24h = r.profit24h(now)
	balance := r.portfolio.Balance
	r.mu.Unlock()

	r.logger.Info("Recorder: trade executed",
		"side", trade.Side, "symbol", trade.Symbol, "source", trade.Source,
		"usd_amount", trade.AmountUSD, "price", trade.Price, "profit", trade.Profit, "strategy", trade.Strategy)
	metrics.RecordTrade(trade.Symbol, string(trade.Side), string(trade.Strategy), realized, balance)

	if r.repo != nil {
		if _, err := r.repo.PersistTrade(ctx, trade); err != nil {
			r.logger.Error("Recorder: failed to persist trade", "id", trade.ID, "error", err)
		}
	}
	if r.notifier != nil {
		r.notifier.TradeExecuted(trade)
	}
	return trade, nil
}

// profit24h drops realized entries older than 24h before now and sums the
// rest. Caller holds mu.
func (r *Recorder) profit24h(now time.Time) float64 {
	since := now.Add(-24 * time.Hour)
	keep := 0
	for keep < len(r.realized) && r.realized[keep].at.Before(since) {
		keep++
	}
	r.realized = r.realized[keep:]

	var sum float64
	for _, e := range r.realized {
		sum += e.usd
	}
	return model.Round(sum, 2)
}

// Portfolio returns a copy of the counters with the win rate derived.
func (r *Recorder) Portfolio() model.Portfolio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portfolio.Profit24h = r.profit24h(r.now())
	p := r.portfolio.Snapshot()
	p.WinRate = model.Round(p.WinRate, 1)
	return p
}

// History returns at most limit trades from the in-memory log, newest first.
func (r *Recorder) History(limit int) []model.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.log) {
		limit = len(r.log)
	}
	out := make([]model.Trade, 0, limit)
	for i := len(r.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.log[i])
	}
	return out
}
