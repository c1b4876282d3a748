package meme

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var simulatedNames = []string{
	"Doge Moon", "Pepe Classic", "Shiba Rocket", "Floki Frog", "Bonk Inu",
	"Wojak Coin", "Cat Wif Hat", "Turbo Toad", "Mog Cat", "Brett Base",
	"Ponke", "Myro Dog", "Milady Meme", "Book of Memes", "Slerf",
	"Popcat", "Neiro", "Gigachad", "Moo Deng", "Goat Token",
}

// SimulatedProvider generates a plausible coin list: half small caps with
// heavy volume, half larger or pricier coins the filter rejects.
type SimulatedProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulatedProvider creates a provider; a nil rng is seeded randomly.
func NewSimulatedProvider(rng *rand.Rand) *SimulatedProvider {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SimulatedProvider{rng: rng, now: time.Now}
}

func (s *SimulatedProvider) Live() bool {
	return false
}

func (s *SimulatedProvider) Markets(ctx context.Context) ([]CoinMarket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	coins := make([]CoinMarket, len(simulatedNames))
	for i, name := range simulatedNames {
		c := CoinMarket{
			ID:             fmt.Sprintf("sim-%d", i+1),
			Symbol:         fmt.Sprintf("SIM%d", i+1),
			Name:           name,
			MarketCapRank:  100 + i*7,
			PriceChange24h: s.uniform(-40, 80),
			LastUpdated:    now,
		}
		if i%2 == 0 {
			c.CurrentPrice = s.uniform(0.000001, 0.9)
			c.MarketCap = s.uniform(10e6, 450e6)
			c.TotalVolume = s.uniform(6e6, 120e6)
		} else {
			c.CurrentPrice = s.uniform(1.5, 20)
			c.MarketCap = s.uniform(300e6, 5e9)
			c.TotalVolume = s.uniform(1e6, 400e6)
		}
		coins[i] = c
	}
	return coins, nil
}

// uniform draws from [lo, hi). Caller holds mu.
func (s *SimulatedProvider) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
