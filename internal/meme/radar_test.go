package meme

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradedesk/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAnalyze(t *testing.T) {
	coins := []CoinMarket{
		{ID: "low", Symbol: "low", CurrentPrice: 0.5, MarketCap: 200e6, TotalVolume: 10e6, PriceChange24h: -15},
		{ID: "hot", Symbol: "hot", CurrentPrice: 0.01, MarketCap: 100e6, TotalVolume: 50e6, PriceChange24h: 20},
		{ID: "mid", Symbol: "mid", CurrentPrice: 0.2, MarketCap: 50e6, TotalVolume: 20e6, PriceChange24h: 8},
		{ID: "capped", Symbol: "capped", CurrentPrice: 0.001, MarketCap: 10e6, TotalVolume: 30e6},
		{ID: "pricey", CurrentPrice: 1.5, MarketCap: 100e6, TotalVolume: 50e6},
		{ID: "large", CurrentPrice: 0.5, MarketCap: 600e6, TotalVolume: 50e6},
		{ID: "thin", CurrentPrice: 0.5, MarketCap: 100e6, TotalVolume: 4e6},
	}

	got := Analyze(coins, 20)
	require.Len(t, got, 4)

	tests := []struct {
		id    string
		pump  float64
		spike float64
		risk  string
	}{
		{id: "capped", pump: 100, spike: 300, risk: "high"},
		{id: "hot", pump: 90, spike: 50, risk: "high"},
		{id: "mid", pump: 56, spike: 40, risk: "medium"},
		{id: "low", pump: 35, spike: 0, risk: "low"},
	}
	for i, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			c := got[i]
			assert.Equal(t, tt.id, c.ID)
			assert.InDelta(t, tt.pump, c.PumpPotential, 1e-9)
			assert.InDelta(t, tt.spike, c.VolumeSpike, 1e-9)
			assert.Equal(t, tt.risk, c.RiskLevel)
		})
	}
	assert.Equal(t, "HOT", got[1].Symbol)

	assert.Len(t, Analyze(coins, 2), 2)
	assert.NotNil(t, Analyze(nil, 20))
}

func TestGainersAndVolumeLeaders(t *testing.T) {
	coins := make([]CoinMarket, 0, 15)
	for i := 0; i < 15; i++ {
		coins = append(coins, CoinMarket{ID: string(rune('a' + i)), TotalVolume: float64(i), PriceChange24h: float64(i * 2)})
	}

	gainers := topGainers(coins)
	require.Len(t, gainers, 9)
	assert.Equal(t, "g", gainers[0].ID, "first coin above 10%, provider order kept")

	leaders := volumeLeaders(coins)
	require.Len(t, leaders, 10)
	assert.Equal(t, "o", leaders[0].ID)
	assert.Equal(t, "a", coins[0].ID, "input left unsorted")
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	coins []CoinMarket
	err   error
}

func (p *countingProvider) Live() bool { return false }

func (p *countingProvider) Markets(ctx context.Context) ([]CoinMarket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.coins, p.err
}

func (p *countingProvider) set(coins []CoinMarket, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coins, p.err = coins, err
}

func (p *countingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRadar_CachesForTTL(t *testing.T) {
	provider := &countingProvider{coins: []CoinMarket{{ID: "hot", CurrentPrice: 0.01, MarketCap: 100e6, TotalVolume: 50e6}}}
	radar := NewRadar(testLogger(), config.MemeRadarConfig{CacheTTL: 5 * time.Minute}, provider)
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	radar.now = func() time.Time { return now }
	ctx := context.Background()

	report, err := radar.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalAnalyzed)
	assert.Len(t, report.Candidates, 1)
	assert.Equal(t, now, report.FetchedAt)

	radar.now = func() time.Time { return now.Add(4 * time.Minute) }
	_, err = radar.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.Calls())

	radar.now = func() time.Time { return now.Add(6 * time.Minute) }
	provider.set(nil, errors.New("rate limited"))
	report, err = radar.Report(ctx)
	require.NoError(t, err, "stale data is served when the refresh fails")
	assert.Equal(t, 2, provider.Calls())
	assert.Equal(t, now, report.FetchedAt)
	assert.Len(t, report.Candidates, 1)

	provider.set([]CoinMarket{}, nil)
	report, err = radar.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.Calls())
	assert.Empty(t, report.Candidates)
	assert.Equal(t, now.Add(6*time.Minute), report.FetchedAt)
}

func TestRadar_FirstFetchFails(t *testing.T) {
	provider := &countingProvider{err: errors.New("down")}
	radar := NewRadar(testLogger(), config.MemeRadarConfig{}, provider)

	_, err := radar.Report(context.Background())
	assert.EqualError(t, err, "down")
}

func TestCoinGeckoProvider_Markets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "volume_desc", r.URL.Query().Get("order"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"pepe","symbol":"pepe","name":"Pepe","current_price":0.0000012,"market_cap":450000000,
			 "market_cap_rank":40,"total_volume":90000000,"price_change_percentage_24h":12.5,
			 "last_updated":"2025-01-02T12:00:00.000Z"},
			{"id":"nulls","symbol":"nul","name":"Nulls","current_price":null,"market_cap":null,
			 "market_cap_rank":null,"total_volume":1,"price_change_percentage_24h":null,"last_updated":null}
		]`))
	}))
	defer srv.Close()

	p := NewCoinGeckoProvider(testLogger(), config.MemeRadarConfig{URL: srv.URL + "/api/v3/", Timeout: time.Second})
	coins, err := p.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, coins, 2)
	assert.Equal(t, "pepe", coins[0].ID)
	assert.Equal(t, 450e6, coins[0].MarketCap)
	assert.Equal(t, 40, coins[0].MarketCapRank)
	assert.Equal(t, 12.5, coins[0].PriceChange24h)
	assert.Equal(t, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), coins[0].LastUpdated.UTC())
	assert.Zero(t, coins[1].MarketCap)
	assert.True(t, p.Live())
}

func TestCoinGeckoProvider_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewCoinGeckoProvider(testLogger(), config.MemeRadarConfig{URL: srv.URL})
	_, err := p.Markets(context.Background())
	assert.ErrorContains(t, err, "status 429")
}

func TestSimulatedProvider_Markets(t *testing.T) {
	p := NewSimulatedProvider(rand.New(rand.NewSource(7)))
	coins, err := p.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, coins, len(simulatedNames))
	assert.False(t, p.Live())

	candidates := Analyze(coins, 0)
	assert.Len(t, candidates, len(simulatedNames)/2, "every small-cap half coin qualifies")
	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.PumpPotential, 0.0)
		assert.LessOrEqual(t, c.PumpPotential, 100.0)
		assert.Contains(t, []string{"low", "medium", "high"}, c.RiskLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Markets(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProvider(t *testing.T) {
	assert.IsType(t, &SimulatedProvider{}, NewProvider(testLogger(), config.MemeRadarConfig{}))
	assert.IsType(t, &CoinGeckoProvider{}, NewProvider(testLogger(), config.MemeRadarConfig{Live: true, URL: "http://localhost"}))
}
