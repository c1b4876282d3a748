package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"tradedesk/internal/config"
)

// BinanceSource implements PriceSource with Binance spot last prices.
type BinanceSource struct {
	logger *slog.Logger
	client *binance.Client
}

// NewBinanceSource creates a new BinanceSource. cfg.URL overrides the REST base URL.
func NewBinanceSource(logger *slog.Logger, cfg config.ExchangeConfig) *BinanceSource {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.URL != "" {
		client.BaseURL = cfg.URL
	}
	return &BinanceSource{logger: logger, client: client}
}

func (b *BinanceSource) GetName() string {
	return "binance"
}

func (b *BinanceSource) Live() bool {
	return true
}

// FetchPrice reads the last traded price for symbol ("BTC/USDT").
func (b *BinanceSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	pair := binanceSymbol(symbol)
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: list prices %s: %w", pair, err)
	}
	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("binance: parse price %q: %w", p.Price, err)
		}
		b.logger.Debug("BinanceSource: fetched price", "symbol", symbol, "price", price)
		return price, nil
	}
	return 0, fmt.Errorf("binance: %s: %w", pair, ErrNoPrice)
}

func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
