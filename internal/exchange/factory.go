package exchange

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

var simulatedOnly = map[string]bool{
	"coinbase": true,
	"kucoin":   true,
	"okx":      true,
	"bybit":    true,
}

// NewSource creates a price source based on the given name and configuration.
// Sources without credentials (or without live enabled) are simulated.
func NewSource(name string, logger *slog.Logger, cfg config.ExchangeConfig, markets []model.Market) (PriceSource, error) {
	switch {
	case name == "binance" && cfg.APIKey != "":
		return NewBinanceSource(logger, cfg), nil
	case name == "kraken" && cfg.Live:
		return NewKrakenSource(logger, cfg), nil
	case name == "binance", name == "kraken", simulatedOnly[name]:
		return NewSimulatedSource(name, basePrices(markets), rand.New(rand.NewSource(rand.Int63()))), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}

// NewSources builds one source per configured exchange, sorted by name.
func NewSources(logger *slog.Logger, exchanges map[string]config.ExchangeConfig, markets []model.Market) ([]PriceSource, error) {
	names := make([]string, 0, len(exchanges))
	for name := range exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make([]PriceSource, 0, len(names))
	for _, name := range names {
		src, err := NewSource(name, logger, exchanges[name], markets)
		if err != nil {
			return nil, err
		}
		logger.Info("Exchange: source ready", "name", name, "live", src.Live())
		sources = append(sources, src)
	}
	return sources, nil
}

func basePrices(markets []model.Market) map[string]float64 {
	bases := make(map[string]float64, len(markets))
	for _, m := range markets {
		if m.BasePrice > 0 {
			bases[m.Symbol] = m.BasePrice
		}
	}
	return bases
}
