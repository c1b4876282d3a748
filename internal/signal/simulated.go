package signal

import (
	"context"
	"math/rand"
	"sync"

	"tradedesk/internal/model"
)

// SimulatedIndicators draws indicator readings from fixed uniform ranges.
type SimulatedIndicators struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedIndicators creates a provider; a nil rng is seeded randomly.
func NewSimulatedIndicators(rng *rand.Rand) *SimulatedIndicators {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SimulatedIndicators{rng: rng}
}

func (s *SimulatedIndicators) Indicators(ctx context.Context, symbol string) (model.Indicators, error) {
	if err := ctx.Err(); err != nil {
		return model.Indicators{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.Indicators{
		RSI:         s.uniform(25, 75),
		MACD:        s.uniform(-0.5, 0.5),
		BBPosition:  s.rng.Float64(),
		VolumeRatio: s.uniform(0.8, 2.0),
		Momentum:    s.uniform(-1, 1),
		Trend:       s.trend(),
		Jitter:      s.rng.Float64(),
	}, nil
}

func (s *SimulatedIndicators) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// trend is bullish 40%, bearish 30%, neutral 30%.
func (s *SimulatedIndicators) trend() string {
	switch r := s.rng.Float64(); {
	case r < 0.4:
		return "bullish"
	case r < 0.7:
		return "bearish"
	default:
		return "neutral"
	}
}
