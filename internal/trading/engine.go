package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"tradedesk/internal/arbitrage"
	"tradedesk/internal/cache"
	"tradedesk/internal/config"
	"tradedesk/internal/exchange"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/signal"
	"tradedesk/internal/strategy"
)

const arbitrageConfidence = 80.0

// QuoteCollector gathers one price book per cycle.
type QuoteCollector interface {
	Collect(ctx context.Context, symbols []string) (model.PriceBook, []model.PriceQuote)
}

// QuoteMirror receives each cycle's quotes, e.g. a Redis cache.
type QuoteMirror interface {
	SetQuotes(ctx context.Context, quotes []model.PriceQuote) error
}

// QuoteLookup is implemented by mirrors that can serve a quote back.
type QuoteLookup interface {
	Latest(ctx context.Context, symbol, source string) (model.PriceQuote, error)
}

// Snapshot is the read-only result of one polling cycle.
type Snapshot struct {
	Cycle         int64                  `json:"cycle"`
	Prices        model.PriceBook        `json:"prices"`
	Quotes        []model.PriceQuote     `json:"-"`
	Opportunities []model.Opportunity    `json:"opportunities"`
	Signals       []model.Signal         `json:"ai_signals"`
	Conditions    model.MarketConditions `json:"market_conditions"`
	Decision      model.StrategyDecision `json:"recommended_strategy"`
	UpdatedAt     time.Time              `json:"last_update"`
}

// Components are the collaborators an Engine drives each cycle.
type Components struct {
	Collector QuoteCollector
	Scanner   *arbitrage.Scanner
	Signals   *signal.Generator
	Selector  *strategy.Selector
	Recorder  *Recorder
	Mirror    QuoteMirror
}

// Engine runs the polling loop and owns the trading flags.
type Engine struct {
	logger *slog.Logger
	cfg    config.TradingConfig
	Components

	markets  atomic.Pointer[[]model.Market]
	snapshot atomic.Pointer[Snapshot]
	session  atomic.Pointer[Session]
	active   atomic.Bool
	auto     atomic.Bool
	cycles   atomic.Int64
	started  time.Time

	// ticks replaces the poll ticker in tests.
	ticks <-chan time.Time
}

// NewEngine creates a new Engine. Trading starts inactive.
func NewEngine(logger *slog.Logger, cfg config.TradingConfig, markets []model.Market, c Components) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	e := &Engine{logger: logger, cfg: cfg, Components: c, started: time.Now()}
	e.SetMarkets(markets)
	e.snapshot.Store(&Snapshot{Prices: model.PriceBook{}})
	return e
}

// Run executes a cycle immediately and then on every poll tick until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticks := e.ticks
	if ticks == nil {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	e.logger.Info("Engine: polling started", "interval", e.cfg.PollInterval)
	for {
		if err := e.RunCycle(ctx); err != nil {
			e.logger.Error("Engine: cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			e.logger.Info("Engine: polling stopped")
			return nil
		case <-ticks:
		}
	}
}

// RunCycle collects prices, refreshes opportunities, signals and the strategy
// decision, publishes a new snapshot and, if trading is active, executes.
func (e *Engine) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	active := e.active.Load()
	start := time.Now()
	markets := e.Markets()
	symbols := make([]string, len(markets))
	for i, m := range markets {
		symbols[i] = m.Symbol
	}

	book, quotes := e.Collector.Collect(ctx, symbols)
	balance := e.Recorder.Portfolio().Balance
	opps := e.Scanner.FindOpportunities(book, balance)
	sigs := e.Signals.Generate(ctx, markets, book)
	conds := e.Selector.Analyze(opps, sigs)
	decision := e.Selector.Decide(conds, balance)

	snap := &Snapshot{
		Cycle:         e.cycles.Add(1),
		Prices:        book,
		Quotes:        quotes,
		Opportunities: opps,
		Signals:       sigs,
		Conditions:    conds,
		Decision:      decision,
		UpdatedAt:     time.Now(),
	}
	e.snapshot.Store(snap)

	if e.Mirror != nil {
		if err := e.Mirror.SetQuotes(ctx, quotes); err != nil {
			e.logger.Warn("Engine: quote mirror failed", "error", err)
		}
	}

	executed := 0
	if active {
		executed = e.execute(ctx, snap)
	}

	took := time.Since(start)
	metrics.ObserveCycle(took, len(opps), len(sigs))
	e.logger.Info("Engine: cycle complete",
		"cycle", snap.Cycle, "quotes", len(quotes), "opportunities", len(opps),
		"signals", len(sigs), "strategy", decision.Strategy, "executed", executed, "took", took)
	return nil
}

// execute places this cycle's trades and returns how many were recorded.
func (e *Engine) execute(ctx context.Context, snap *Snapshot) int {
	runArb, runSignals := true, false
	if e.auto.Load() {
		switch snap.Decision.Strategy {
		case model.StrategyAISignal:
			runArb, runSignals = false, true
		case model.StrategyHybrid:
			runSignals = true
		}
	}

	n := 0
	if runArb {
		for _, o := range arbitrage.Top(snap.Opportunities, e.cfg.ExecuteTopN) {
			if o.ProfitPct <= e.cfg.ExecuteMinProfitPct {
				continue
			}
			buy, sell, err := e.executePair(ctx, o.Symbol, o.BuySource, o.SellSource, o.BuyPrice, o.SellPrice, o.PositionSize, o.Confidence)
			if err != nil {
				e.logger.Warn("Engine: arbitrage execution failed", "symbol", o.Symbol, "error", err)
			}
			if buy != nil {
				n++
			}
			if sell != nil {
				n++
			}
		}
	}
	if runSignals {
		for _, s := range snap.Signals {
			side := model.SideBuy
			if s.Direction == model.DirectionSell {
				side = model.SideSell
			}
			source, price, ok := pickPrice(snap.Prices, s.Symbol, "")
			if !ok {
				continue
			}
			_, err := e.Recorder.Record(ctx, TradeIntent{
				Source:     source,
				Symbol:     s.Symbol,
				Side:       side,
				AmountUSD:  e.cfg.MinTradeUSD,
				Strategy:   model.StrategyAISignal,
				Confidence: s.Confidence,
			}, price)
			if err != nil {
				e.logger.Warn("Engine: signal execution failed", "symbol", s.Symbol, "error", err)
				continue
			}
			n++
		}
	}
	return n
}

// executePair records the buy leg and, only if it succeeded, the sell leg.
func (e *Engine) executePair(ctx context.Context, symbol, buySource, sellSource string, buyPrice, sellPrice, size, confidence float64) (buy, sell *model.Trade, err error) {
	b, err := e.Recorder.Record(ctx, TradeIntent{
		Source: buySource, Symbol: symbol, Side: model.SideBuy,
		AmountUSD: size, Strategy: model.StrategyArbitrage, Confidence: confidence,
	}, buyPrice)
	if err != nil {
		return nil, nil, fmt.Errorf("buy failed: %w", err)
	}
	s, err := e.Recorder.Record(ctx, TradeIntent{
		Source: sellSource, Symbol: symbol, Side: model.SideSell,
		AmountUSD: size, Strategy: model.StrategyArbitrage, Confidence: confidence,
	}, sellPrice)
	if err != nil {
		return &b, nil, fmt.Errorf("sell failed: %w", err)
	}
	return &b, &s, nil
}

// ExecuteTrade records a manual trade at the latest snapshot price for the
// requested source, fetching fresh prices if the snapshot has none. The intent
// is validated, and its symbol must be a configured market, before any source
// is queried.
func (e *Engine) ExecuteTrade(ctx context.Context, intent TradeIntent) (model.Trade, error) {
	if intent.Strategy == "" {
		intent.Strategy = model.StrategyManual
	}
	if err := Validate(intent); err != nil {
		return model.Trade{}, err
	}
	if err := e.checkMarket(intent.Symbol); err != nil {
		return model.Trade{}, err
	}
	source, price, err := e.priceFor(ctx, intent.Symbol, intent.Source)
	if err != nil {
		return model.Trade{}, err
	}
	intent.Source = source
	return e.Recorder.Record(ctx, intent, price)
}

// ExecuteArbitrage records a buy on one source and a sell on another.
func (e *Engine) ExecuteArbitrage(ctx context.Context, req ArbitrageRequest) (buy, sell *model.Trade, err error) {
	if err := Validate(req); err != nil {
		return nil, nil, err
	}
	if err := e.checkMarket(req.Symbol); err != nil {
		return nil, nil, err
	}
	buyPrice, err := e.exactPrice(ctx, req.Symbol, req.BuySource)
	if err != nil {
		return nil, nil, err
	}
	sellPrice, err := e.exactPrice(ctx, req.Symbol, req.SellSource)
	if err != nil {
		return nil, nil, err
	}
	return e.executePair(ctx, req.Symbol, req.BuySource, req.SellSource, buyPrice, sellPrice, req.PositionSize, arbitrageConfidence)
}

func (e *Engine) checkMarket(symbol string) error {
	if _, ok := e.Market(symbol); !ok {
		return &ValidationError{Field: "symbol", Reason: "is not a configured market"}
	}
	return nil
}

// priceFor looks in the snapshot, then the mirror, then collects fresh prices.
func (e *Engine) priceFor(ctx context.Context, symbol, source string) (string, float64, error) {
	snap := e.Snapshot().Prices
	if p, ok := snap[symbol][source]; ok {
		return source, p, nil
	}
	if lookup, ok := e.Mirror.(QuoteLookup); ok && source != "" {
		q, err := lookup.Latest(ctx, symbol, source)
		switch {
		case err == nil && q.Price > 0:
			return source, q.Price, nil
		case err != nil && !errors.Is(err, cache.ErrNotFound):
			e.logger.Warn("Engine: quote mirror lookup failed", "symbol", symbol, "source", source, "error", err)
		}
	}
	if src, p, ok := pickPrice(snap, symbol, source); ok {
		return src, p, nil
	}
	book, _ := e.Collector.Collect(ctx, []string{symbol})
	if src, p, ok := pickPrice(book, symbol, source); ok {
		return src, p, nil
	}
	return "", 0, fmt.Errorf("%s: %w", symbol, exchange.ErrNoPrice)
}

// exactPrice is priceFor without the source fallback; both arbitrage legs must
// be priced on the source they are booked against.
func (e *Engine) exactPrice(ctx context.Context, symbol, source string) (float64, error) {
	got, p, err := e.priceFor(ctx, symbol, source)
	if err != nil {
		return 0, err
	}
	if got != source {
		return 0, fmt.Errorf("%s on %s: %w", symbol, source, exchange.ErrNoPrice)
	}
	return p, nil
}

// pickPrice returns the requested source's price, or the alphabetically first
// source's when source is empty or missing.
func pickPrice(book model.PriceBook, symbol, source string) (string, float64, bool) {
	prices := book[symbol]
	if p, ok := prices[source]; ok {
		return source, p, true
	}
	if len(prices) == 0 {
		return "", 0, false
	}
	names := make([]string, 0, len(prices))
	for name := range prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0], prices[names[0]], true
}

// Start validates the session against the balance and activates trading.
func (e *Engine) Start(s Session) error {
	if s.Budget < e.cfg.MinBudgetUSD {
		return fmt.Errorf("%w: minimum budget is $%.0f", ErrBelowMinimumBudget, e.cfg.MinBudgetUSD)
	}
	if err := Validate(s); err != nil {
		return err
	}
	if balance := e.Recorder.Portfolio().Balance; s.Budget > balance {
		return ErrInsufficientBalance
	}
	e.session.Store(&s)
	e.active.Store(true)
	e.logger.Info("Engine: trading started", "budget", s.Budget, "strategy", s.Strategy, "risk", s.RiskLevel)
	return nil
}

// Stop deactivates trading and auto mode; a cycle already executing finishes.
func (e *Engine) Stop() {
	e.active.Store(false)
	if e.auto.Load() {
		e.DeactivateAutoMode()
	}
	e.logger.Info("Engine: trading stopped")
}

// ActivateAutoMode lets the strategy selector drive execution and starts trading.
func (e *Engine) ActivateAutoMode() {
	e.auto.Store(true)
	e.Selector.SetActive(true)
	e.active.Store(true)
	e.logger.Info("Engine: auto mode activated")
}

// DeactivateAutoMode returns to arbitrage-only execution.
func (e *Engine) DeactivateAutoMode() {
	e.auto.Store(false)
	e.Selector.SetActive(false)
	e.Selector.Reset()
}

func (e *Engine) Active() bool   { return e.active.Load() }
func (e *Engine) AutoMode() bool { return e.auto.Load() }

// Session returns the last started session, if any.
func (e *Engine) Session() (Session, bool) {
	s := e.session.Load()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// Snapshot returns the latest cycle result. It is never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// SetMarkets swaps the market table for later cycles.
func (e *Engine) SetMarkets(markets []model.Market) {
	m := append([]model.Market(nil), markets...)
	e.markets.Store(&m)
	if e.Scanner != nil {
		e.Scanner.SetMarkets(m)
	}
}

// Markets returns the current market table.
func (e *Engine) Markets() []model.Market {
	return *e.markets.Load()
}

// Market looks up a configured market by symbol.
func (e *Engine) Market(symbol string) (model.Market, bool) {
	for _, m := range e.Markets() {
		if m.Symbol == symbol {
			return m, true
		}
	}
	return model.Market{}, false
}

// Uptime is the time since the engine was created.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.started)
}
