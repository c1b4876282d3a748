package model

import "time"

// Side is the direction of a recorded trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction is the recommendation carried by a Signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// StrategyName labels the policy that produced a trade or decision.
type StrategyName string

const (
	StrategyManual    StrategyName = "manual"
	StrategyArbitrage StrategyName = "arbitrage"
	StrategyAISignal  StrategyName = "ai_signal"
	StrategyHybrid    StrategyName = "hybrid"
)

// PriceQuote is a single price read from one source during one polling cycle.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Market describes a tradable symbol and its arbitrage parameters.
type Market struct {
	Symbol        string  `mapstructure:"symbol" json:"symbol"`
	Name          string  `mapstructure:"name" json:"name"`
	MinProfitPct  float64 `mapstructure:"min_profit_pct" json:"min_profit_pct"`
	AllocationPct float64 `mapstructure:"allocation_pct" json:"allocation_pct"`
	Priority      float64 `mapstructure:"priority" json:"priority"`
	Volatility    string  `mapstructure:"volatility" json:"volatility"`
	BasePrice     float64 `mapstructure:"base_price" json:"base_price"`
}

// Opportunity is a cross-source spread that cleared the market's profit threshold.
type Opportunity struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	BuySource    string    `json:"buy_exchange"`
	SellSource   string    `json:"sell_exchange"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	ProfitPct    float64   `json:"profit_pct"`
	ProfitUSD    float64   `json:"profit_usd"`
	PositionSize float64   `json:"position_size"`
	Priority     float64   `json:"priority"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}

// Indicators are the inputs a signal is derived from.
type Indicators struct {
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	BBPosition  float64 `json:"bb_position"`
	VolumeRatio float64 `json:"volume_spike"`
	Momentum    float64 `json:"momentum"`
	Trend       string  `json:"trend"`
	// Jitter in [0,1] spreads confidence within a rule's band.
	Jitter float64 `json:"-"`
}

// Signal is a directional recommendation for one symbol.
type Signal struct {
	Symbol       string     `json:"symbol"`
	Coin         string     `json:"coin"`
	Direction    Direction  `json:"direction"`
	Confidence   float64    `json:"confidence"`
	CurrentPrice float64    `json:"current_price"`
	TargetPrice  float64    `json:"target_price"`
	RiskLevel    string     `json:"risk_level"`
	Timeframe    string     `json:"timeframe"`
	Indicators   Indicators `json:"analysis"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Trade is an executed (simulated) trade. It is never mutated after creation.
type Trade struct {
	ID            int64        `json:"id" db:"id"`
	Timestamp     time.Time    `json:"timestamp" db:"timestamp"`
	Source        string       `json:"exchange" db:"exchange"`
	Symbol        string       `json:"symbol" db:"symbol"`
	Side          Side         `json:"side" db:"side"`
	Amount        float64      `json:"amount" db:"amount"`
	Price         float64      `json:"price" db:"price"`
	AmountUSD     float64      `json:"usd_amount" db:"usd_amount"`
	Profit        float64      `json:"profit" db:"profit"`
	ProfitPct     float64      `json:"profit_pct" db:"profit_pct"`
	Strategy      StrategyName `json:"strategy" db:"strategy"`
	Confidence    float64      `json:"confidence" db:"confidence"`
	ExecutionTime float64      `json:"execution_time" db:"execution_time"`
}

// TradeStats aggregates persisted trades over a time window.
type TradeStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgROI        float64 `json:"avg_roi"`
	TotalProfit   float64 `json:"total_profit"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
	AvgExecTime   float64 `json:"avg_execution_time"`
}

// MarketConditions are the aggregate metrics the strategy selector classifies.
type MarketConditions struct {
	Volatility     float64 `json:"volatility"`
	TrendStrength  float64 `json:"trend_strength"`
	Opportunities  int     `json:"arbitrage_opportunities"`
	SignalStrength float64 `json:"ai_signal_strength"`
	VolumeSpike    float64 `json:"volume_spike"`
}

// StrategyDecision is one output of the strategy selector.
type StrategyDecision struct {
	Timestamp  time.Time        `json:"timestamp"`
	Strategy   StrategyName     `json:"strategy"`
	Confidence float64          `json:"confidence"`
	Rationale  string           `json:"rationale"`
	Conditions MarketConditions `json:"market_conditions"`
	Balance    float64          `json:"portfolio_balance"`
}
