package exchange

import (
	"context"
	"math/rand"
	"sync"
)

const (
	defaultBasePrice = 1000.0
	simulatedSigma   = 0.002
)

// SimulatedSource produces prices around a fixed base with gaussian noise.
// It is the fallback for every source without credentials.
type SimulatedSource struct {
	name  string
	bases map[string]float64
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewSimulatedSource creates a SimulatedSource. bases maps symbol to its base price;
// unknown symbols use 1000.
func NewSimulatedSource(name string, bases map[string]float64, rng *rand.Rand) *SimulatedSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	copied := make(map[string]float64, len(bases))
	for k, v := range bases {
		copied[k] = v
	}
	return &SimulatedSource{name: name, bases: copied, rng: rng}
}

func (s *SimulatedSource) GetName() string {
	return s.name
}

func (s *SimulatedSource) Live() bool {
	return false
}

// FetchPrice returns base + N(0, 0.2% of base), never below 1% of base.
func (s *SimulatedSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	base, ok := s.bases[symbol]
	if !ok || base <= 0 {
		base = defaultBasePrice
	}

	s.mu.Lock()
	noise := s.rng.NormFloat64() * base * simulatedSigma
	s.mu.Unlock()

	price := base + noise
	if floor := base * 0.01; price < floor {
		price = floor
	}
	return price, nil
}
