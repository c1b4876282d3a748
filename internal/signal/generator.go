// Package signal turns indicator readings into directional trade signals.
package signal

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

// IndicatorProvider supplies indicator readings for a symbol. A real provider
// would compute them from OHLCV history.
type IndicatorProvider interface {
	Indicators(ctx context.Context, symbol string) (model.Indicators, error)
}

// Generator applies the signal rule table to every configured market.
type Generator struct {
	logger   *slog.Logger
	cfg      config.SignalConfig
	provider IndicatorProvider
	now      func() time.Time
}

// NewGenerator creates a new Generator.
func NewGenerator(logger *slog.Logger, cfg config.SignalConfig, provider IndicatorProvider) *Generator {
	return &Generator{logger: logger, cfg: cfg, provider: provider, now: time.Now}
}

// Generate returns the surfaced signals for this cycle, highest confidence first.
// Markets without a price, with provider errors, or below the confidence floor
// are dropped.
func (g *Generator) Generate(ctx context.Context, markets []model.Market, prices model.PriceBook) []model.Signal {
	signals := make([]model.Signal, 0, len(markets))
	for _, m := range markets {
		price, ok := prices.Mean(m.Symbol)
		if !ok {
			continue
		}
		ind, err := g.provider.Indicators(ctx, m.Symbol)
		if err != nil {
			g.logger.Warn("Generator: indicators unavailable", "symbol", m.Symbol, "error", err)
			continue
		}
		sig, ok := g.Evaluate(m, price, ind)
		if !ok {
			continue
		}
		signals = append(signals, sig)
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})
	if g.cfg.MaxSignals > 0 && len(signals) > g.cfg.MaxSignals {
		signals = signals[:g.cfg.MaxSignals]
	}
	return signals
}

// Evaluate builds the signal for one market. ok is false when the signal is
// a hold or does not clear the minimum confidence.
func (g *Generator) Evaluate(m model.Market, price float64, ind model.Indicators) (sig model.Signal, ok bool) {
	direction, confidence := Classify(ind)
	if direction == model.DirectionHold || confidence <= g.cfg.MinConfidence {
		return sig, false
	}

	target := price * (1 + g.cfg.TargetPct/100)
	if direction == model.DirectionSell {
		target = price * (1 - g.cfg.TargetPct/100)
	}

	return model.Signal{
		Symbol:       m.Symbol,
		Coin:         coin(m),
		Direction:    direction,
		Confidence:   model.Round(confidence, 1),
		CurrentPrice: model.Round(price, 4),
		TargetPrice:  model.Round(target, 4),
		RiskLevel:    riskLevel(m.Volatility),
		Timeframe:    timeframe(confidence),
		Indicators:   ind,
		Timestamp:    g.now(),
	}, true
}

// Classify applies the ordered rule table; the first matching rule wins.
// Confidence is always within [0, 100].
func Classify(ind model.Indicators) (model.Direction, float64) {
	j := model.Clamp(ind.Jitter, 0, 1)
	trend := strings.ToLower(ind.Trend)

	var (
		direction = model.DirectionHold
		base      float64
		spread    float64
	)
	switch {
	case ind.RSI < 35 && trend == "bullish":
		direction, base, spread = model.DirectionBuy, 85, 10
	case ind.RSI > 65 && trend == "bearish":
		direction, base, spread = model.DirectionSell, 75, 15
	case ind.Momentum > 0.5 && ind.VolumeRatio > 1.3:
		direction, base, spread = model.DirectionBuy, 70, 15
	case ind.Momentum < -0.5 && ind.VolumeRatio > 1.2:
		direction, base, spread = model.DirectionSell, 70, 10
	case ind.MACD > 0.2 && ind.BBPosition < 0.3:
		direction, base, spread = model.DirectionBuy, 75, 10
	case ind.MACD < -0.2 && ind.BBPosition > 0.7:
		direction, base, spread = model.DirectionSell, 72, 8
	default:
		return model.DirectionHold, 0
	}
	return direction, model.Clamp(base+j*spread, 0, 100)
}

func coin(m model.Market) string {
	if m.Name != "" {
		return m.Name
	}
	base, _, _ := strings.Cut(m.Symbol, "/")
	return base
}

func riskLevel(volatility string) string {
	switch strings.ToLower(volatility) {
	case "low":
		return "Low risk"
	case "medium":
		return "Medium risk"
	default:
		return "High risk"
	}
}

func timeframe(confidence float64) string {
	switch {
	case confidence > 85:
		return "30min - 1h"
	case confidence > 75:
		return "1-3 hours"
	default:
		return "2-6 hours"
	}
}

// Strength is the share of signals with confidence above 80, in [0, 1].
func Strength(signals []model.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	strong := 0
	for _, s := range signals {
		if s.Confidence > 80 {
			strong++
		}
	}
	return math.Round(float64(strong)/float64(len(signals))*100) / 100
}
