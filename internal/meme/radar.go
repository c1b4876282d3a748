// Package meme scans high-volume small caps for pump potential.
package meme

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

const (
	maxMarketCap  = 500_000_000.0
	minVolume24h  = 5_000_000.0
	maxCoinPrice  = 1.0
	gainerMinPct  = 10.0
	listLimit     = 10
	spikeMinRatio = 0.1
)

// CoinMarket is one coin's 24h market data.
type CoinMarket struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	CurrentPrice   float64   `json:"current_price"`
	MarketCap      float64   `json:"market_cap"`
	MarketCapRank  int       `json:"market_cap_rank"`
	TotalVolume    float64   `json:"total_volume"`
	PriceChange24h float64   `json:"price_change_percentage_24h"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Candidate is a coin that passed the small-cap filter, with its score.
type Candidate struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	CurrentPrice   float64 `json:"current_price"`
	MarketCap      float64 `json:"market_cap"`
	Volume24h      float64 `json:"volume_24h"`
	PriceChange24h float64 `json:"price_change_24h"`
	PumpPotential  float64 `json:"pump_potential"`
	VolumeSpike    float64 `json:"volume_spike"`
	RiskLevel      string  `json:"risk_level"`
	MarketCapRank  int     `json:"market_cap_rank"`
}

// Report is one radar view.
type Report struct {
	Candidates    []Candidate  `json:"meme_candidates"`
	TopGainers    []CoinMarket `json:"top_gainers"`
	VolumeLeaders []CoinMarket `json:"volume_leaders"`
	TotalAnalyzed int          `json:"total_analyzed"`
	Live          bool         `json:"live"`
	FetchedAt     time.Time    `json:"timestamp"`
}

// MarketProvider supplies the coin list the radar analyses.
type MarketProvider interface {
	Markets(ctx context.Context) ([]CoinMarket, error)
	Live() bool
}

// Radar caches the provider's coin list for the configured TTL.
type Radar struct {
	logger        *slog.Logger
	provider      MarketProvider
	ttl           time.Duration
	maxCandidates int
	now           func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	coins   []CoinMarket
	fetched time.Time
}

// NewRadar creates a Radar over provider.
func NewRadar(logger *slog.Logger, cfg config.MemeRadarConfig, provider MarketProvider) *Radar {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 20
	}
	return &Radar{
		logger:        logger,
		provider:      provider,
		ttl:           cfg.CacheTTL,
		maxCandidates: cfg.MaxCandidates,
		now:           time.Now,
	}
}

// Report analyses the cached coin list, refreshing it once the TTL expired.
// A failed refresh serves the previous list if there is one.
func (r *Radar) Report(ctx context.Context) (Report, error) {
	coins, fetched, err := r.markets(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Candidates:    Analyze(coins, r.maxCandidates),
		TopGainers:    topGainers(coins),
		VolumeLeaders: volumeLeaders(coins),
		TotalAnalyzed: len(coins),
		Live:          r.provider.Live(),
		FetchedAt:     fetched,
	}, nil
}

func (r *Radar) markets(ctx context.Context) ([]CoinMarket, time.Time, error) {
	r.mu.Lock()
	coins, fetched := r.coins, r.fetched
	r.mu.Unlock()
	if !fetched.IsZero() && r.now().Sub(fetched) < r.ttl {
		return coins, fetched, nil
	}

	_, err, _ := r.group.Do("markets", func() (any, error) {
		fresh, err := r.provider.Markets(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.coins, r.fetched = fresh, r.now()
		r.mu.Unlock()
		r.logger.Debug("MemeRadar: market data refreshed", "coins", len(fresh))
		return nil, nil
	})
	if err != nil {
		if fetched.IsZero() {
			return nil, time.Time{}, err
		}
		r.logger.Warn("MemeRadar: refresh failed, serving cached data", "age", r.now().Sub(fetched), "error", err)
		return coins, fetched, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coins, r.fetched, nil
}

// Analyze keeps coins under $1 with a market cap below 500M and more than 5M
// of 24h volume, scores them and returns at most limit, best first.
func Analyze(coins []CoinMarket, limit int) []Candidate {
	out := make([]Candidate, 0)
	for _, c := range coins {
		if c.MarketCap >= maxMarketCap || c.TotalVolume <= minVolume24h || c.CurrentPrice >= maxCoinPrice {
			continue
		}
		ratio := c.TotalVolume / math.Max(c.MarketCap, 1)
		score := math.Min(100, ratio*100+math.Abs(c.PriceChange24h)*2)
		spike := 0.0
		if ratio > spikeMinRatio {
			spike = ratio
		}
		out = append(out, Candidate{
			ID:             c.ID,
			Name:           c.Name,
			Symbol:         strings.ToUpper(c.Symbol),
			CurrentPrice:   c.CurrentPrice,
			MarketCap:      c.MarketCap,
			Volume24h:      c.TotalVolume,
			PriceChange24h: c.PriceChange24h,
			PumpPotential:  model.Round(score, 1),
			VolumeSpike:    model.Round(spike*100, 1),
			RiskLevel:      riskLevel(score),
			MarketCapRank:  c.MarketCapRank,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PumpPotential > out[j].PumpPotential })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func riskLevel(score float64) string {
	switch {
	case score > 80:
		return "high"
	case score > 50:
		return "medium"
	default:
		return "low"
	}
}

// topGainers keeps the provider's order.
func topGainers(coins []CoinMarket) []CoinMarket {
	out := make([]CoinMarket, 0, listLimit)
	for _, c := range coins {
		if c.PriceChange24h > gainerMinPct {
			out = append(out, c)
			if len(out) == listLimit {
				break
			}
		}
	}
	return out
}

func volumeLeaders(coins []CoinMarket) []CoinMarket {
	out := make([]CoinMarket, len(coins))
	copy(out, coins)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalVolume > out[j].TotalVolume })
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out
}
