// Package strategy picks the active trading strategy from aggregate market conditions.
package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
	"tradedesk/internal/signal"
)

const (
	maxConfidence      = 95.0
	fallbackConfidence = 50.0
	fallbackRationale  = "Error in analysis, using conservative approach"
)

// ConditionSampler supplies the market-wide metrics that are not derived from
// the current cycle's opportunities and signals.
type ConditionSampler interface {
	Sample() (volatility, trend, volumeSpike float64)
}

// ChangeFunc is called after a decision switches the current strategy.
type ChangeFunc func(from, to model.StrategyDecision)

// Status is the auto-mode view served over HTTP.
type Status struct {
	Active          bool                     `json:"active"`
	CurrentStrategy model.StrategyName       `json:"current_strategy"`
	Confidence      float64                  `json:"confidence"`
	Decisions       []model.StrategyDecision `json:"recent_decisions"`
	TotalDecisions  int                      `json:"total_decisions"`
}

// Selector classifies market conditions into a strategy and keeps a bounded
// history of its decisions.
type Selector struct {
	logger   *slog.Logger
	cfg      config.AutoModeConfig
	sampler  ConditionSampler
	onChange ChangeFunc
	now      func() time.Time

	mu      sync.Mutex
	active  bool
	current *model.StrategyDecision
	history []model.StrategyDecision
}

// NewSelector creates a new Selector. onChange may be nil.
func NewSelector(logger *slog.Logger, cfg config.AutoModeConfig, sampler ConditionSampler, onChange ChangeFunc) *Selector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	if cfg.StatusDecisions <= 0 {
		cfg.StatusDecisions = 10
	}
	return &Selector{
		logger:   logger,
		cfg:      cfg,
		sampler:  sampler,
		onChange: onChange,
		now:      time.Now,
	}
}

// Analyze aggregates the cycle's opportunities and signals with sampled
// volatility, trend and volume.
func (s *Selector) Analyze(opps []model.Opportunity, signals []model.Signal) model.MarketConditions {
	volatility, trend, volume := s.sampler.Sample()
	return model.MarketConditions{
		Volatility:     model.Round(volatility, 2),
		TrendStrength:  model.Round(trend, 2),
		Opportunities:  len(opps),
		SignalStrength: signal.Strength(signals),
		VolumeSpike:    model.Round(volume, 2),
	}
}

// Decide runs the decision table, records the result and returns it. It never
// panics; malformed conditions yield the conservative arbitrage fallback.
func (s *Selector) Decide(conds model.MarketConditions, balance float64) model.StrategyDecision {
	d := s.classify(conds)
	d.Timestamp = s.now()
	d.Conditions = conds
	d.Balance = balance

	s.mu.Lock()
	prev := s.current
	s.current = &d
	s.history = append(s.history, d)
	if over := len(s.history) - s.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.mu.Unlock()

	s.logger.Info("Selector: strategy decided",
		"strategy", d.Strategy, "confidence", d.Confidence, "opportunities", conds.Opportunities)

	if s.onChange != nil && prev != nil && prev.Strategy != d.Strategy {
		s.onChange(*prev, d)
	}
	return d
}

func (s *Selector) classify(c model.MarketConditions) (d model.StrategyDecision) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Selector: recovered from panic", "panic", r)
			d = fallback()
		}
	}()

	if !wellFormed(c) {
		s.logger.Warn("Selector: malformed market conditions", "conditions", c)
		return fallback()
	}

	n := float64(c.Opportunities)
	switch {
	case c.Opportunities >= 3 && c.Volatility < 0.4:
		return decision(model.StrategyArbitrage, 85+2*n,
			fmt.Sprintf("%d arbitrage opportunities in a low-volatility market (%.2f)", c.Opportunities, c.Volatility))
	case c.SignalStrength > 0.7 && c.TrendStrength > 0.6:
		return decision(model.StrategyAISignal, 80+15*c.SignalStrength,
			fmt.Sprintf("Strong signals (%.0f%%) with a clear trend (%.2f)", c.SignalStrength*100, c.TrendStrength))
	case c.Volatility > 0.6 && c.Opportunities >= 1:
		return decision(model.StrategyHybrid, 75+3*n,
			fmt.Sprintf("High volatility (%.2f) with %d arbitrage opportunities", c.Volatility, c.Opportunities))
	default:
		return decision(model.StrategyArbitrage, 60, "Mixed market conditions, defaulting to arbitrage")
	}
}

func decision(name model.StrategyName, confidence float64, rationale string) model.StrategyDecision {
	return model.StrategyDecision{
		Strategy:   name,
		Confidence: model.Round(model.Clamp(confidence, 0, maxConfidence), 1),
		Rationale:  rationale,
	}
}

func fallback() model.StrategyDecision {
	return model.StrategyDecision{
		Strategy:   model.StrategyArbitrage,
		Confidence: fallbackConfidence,
		Rationale:  fallbackRationale,
	}
}

func wellFormed(c model.MarketConditions) bool {
	if c.Opportunities < 0 {
		return false
	}
	for _, v := range []float64{c.Volatility, c.TrendStrength, c.SignalStrength, c.VolumeSpike} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// SetActive toggles whether auto mode is driving strategy selection.
func (s *Selector) SetActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// Active reports whether auto mode is on.
func (s *Selector) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Current returns the latest decision, if any.
func (s *Selector) Current() (model.StrategyDecision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.StrategyDecision{}, false
	}
	return *s.current, true
}

// Status returns the current state with the most recent decisions, oldest first.
func (s *Selector) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Active: s.active, TotalDecisions: len(s.history)}
	if s.current != nil {
		st.CurrentStrategy = s.current.Strategy
		st.Confidence = s.current.Confidence
	}
	recent := s.history
	if len(recent) > s.cfg.StatusDecisions {
		recent = recent[len(recent)-s.cfg.StatusDecisions:]
	}
	st.Decisions = append([]model.StrategyDecision(nil), recent...)
	return st
}

// Reset clears the current strategy. History is kept.
func (s *Selector) Reset() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// SimulatedConditions samples volatility U(0.2,0.9), trend U(0.3,0.8) and
// volume U(0.8,2.5).
type SimulatedConditions struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedConditions creates a sampler; a nil rng is seeded randomly.
func NewSimulatedConditions(rng *rand.Rand) *SimulatedConditions {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SimulatedConditions{rng: rng}
}

func (c *SimulatedConditions) Sample() (volatility, trend, volumeSpike float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	volatility = 0.2 + c.rng.Float64()*0.7
	trend = 0.3 + c.rng.Float64()*0.5
	volumeSpike = 0.8 + c.rng.Float64()*1.7
	return volatility, trend, volumeSpike
}
