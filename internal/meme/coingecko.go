package meme

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradedesk/internal/config"
)

// CoinGeckoProvider reads the top 100 coins by volume from the CoinGecko
// markets endpoint.
type CoinGeckoProvider struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGeckoProvider creates a provider against cfg.URL.
func NewCoinGeckoProvider(logger *slog.Logger, cfg config.MemeRadarConfig) *CoinGeckoProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoProvider{
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}
}

func (p *CoinGeckoProvider) Live() bool {
	return true
}

func (p *CoinGeckoProvider) Markets(ctx context.Context) ([]CoinMarket, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "volume_desc")
	q.Set("per_page", "100")
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: markets returned status %d", resp.StatusCode)
	}
	var coins []CoinMarket
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("coingecko: decode markets: %w", err)
	}
	p.logger.Debug("CoinGeckoProvider: fetched markets", "coins", len(coins))
	return coins, nil
}

// NewProvider returns the CoinGecko provider when cfg.Live is set and the
// simulated one otherwise.
func NewProvider(logger *slog.Logger, cfg config.MemeRadarConfig) MarketProvider {
	if cfg.Live {
		return NewCoinGeckoProvider(logger, cfg)
	}
	return NewSimulatedProvider(nil)
}
