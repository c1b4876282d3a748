package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tradedesk/internal/config"
)

const (
	krakenDefaultURL = "wss://ws.kraken.com"
	krakenStaleAfter = 30 * time.Second
	krakenMaxBackoff = 16 * time.Second
)

type krakenTick struct {
	price float64
	at    time.Time
}

// KrakenSource implements PriceSource on top of the Kraken ticker stream.
// FetchPrice serves the latest mid price received by StartStream.
type KrakenSource struct {
	logger *slog.Logger
	url    string
	mu     sync.RWMutex
	latest map[string]krakenTick
	now    func() time.Time
}

// NewKrakenSource creates a new KrakenSource.
func NewKrakenSource(logger *slog.Logger, cfg config.ExchangeConfig) *KrakenSource {
	url := cfg.URL
	if url == "" {
		url = krakenDefaultURL
	}
	return &KrakenSource{
		logger: logger,
		url:    url,
		latest: make(map[string]krakenTick),
		now:    time.Now,
	}
}

func (k *KrakenSource) GetName() string {
	return "kraken"
}

func (k *KrakenSource) Live() bool {
	return true
}

// FetchPrice returns the cached mid price, or ErrNoPrice if none arrived recently.
func (k *KrakenSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k.mu.RLock()
	tick, ok := k.latest[symbol]
	k.mu.RUnlock()
	if !ok || k.now().Sub(tick.at) > krakenStaleAfter {
		return 0, fmt.Errorf("kraken: %s: %w", symbol, ErrNoPrice)
	}
	return tick.price, nil
}

// StartStream connects to the Kraken WebSocket API and keeps the ticker cache
// current until ctx is cancelled, reconnecting with exponential backoff.
func (k *KrakenSource) StartStream(ctx context.Context, symbols []string) error {
	pairs := make([]string, 0, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		p := krakenPair(s)
		pairs = append(pairs, p)
		bySymbol[p] = s
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			k.logger.Info("KrakenSource: context cancelled, shutting down")
			return nil
		}

		k.logger.Info("KrakenSource: connecting to WebSocket", "url", k.url, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, k.url, nil)
		if err == nil {
			err = k.subscribe(c, pairs)
			if err == nil {
				backoff = time.Second
				err = k.readLoop(ctx, c, bySymbol)
			}
			c.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		k.logger.Error("KrakenSource: stream interrupted", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
			backoff *= 2
			if backoff > krakenMaxBackoff {
				backoff = krakenMaxBackoff
			}
		}
	}
}

func (k *KrakenSource) subscribe(c *websocket.Conn, pairs []string) error {
	subscription := map[string]interface{}{
		"event": "subscribe",
		"pair":  pairs,
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	if err := c.WriteJSON(subscription); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	k.logger.Info("KrakenSource: subscription sent", "pairs", pairs)
	return nil
}

func (k *KrakenSource) readLoop(ctx context.Context, c *websocket.Conn, bySymbol map[string]string) error {
	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		k.handleMessage(message, bySymbol)
	}
}

// handleMessage parses ticker frames of the form
// [channelID, {"a": [ask, ...], "b": [bid, ...]}, "ticker", "XBT/USDT"].
// Event objects (heartbeat, subscriptionStatus) are ignored.
func (k *KrakenSource) handleMessage(message []byte, bySymbol map[string]string) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil || len(frame) < 4 {
		return
	}

	var channel, pair string
	if json.Unmarshal(frame[len(frame)-2], &channel) != nil || channel != "ticker" {
		return
	}
	if json.Unmarshal(frame[len(frame)-1], &pair) != nil {
		return
	}
	symbol, ok := bySymbol[pair]
	if !ok {
		return
	}

	var ticker struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
	}
	if err := json.Unmarshal(frame[1], &ticker); err != nil || len(ticker.Ask) == 0 || len(ticker.Bid) == 0 {
		k.logger.Warn("KrakenSource: failed to parse ticker", "pair", pair)
		return
	}
	ask, err := strconv.ParseFloat(ticker.Ask[0], 64)
	if err != nil {
		k.logger.Warn("KrakenSource: failed to parse ask price", "error", err)
		return
	}
	bid, err := strconv.ParseFloat(ticker.Bid[0], 64)
	if err != nil {
		k.logger.Warn("KrakenSource: failed to parse bid price", "error", err)
		return
	}

	k.mu.Lock()
	k.latest[symbol] = krakenTick{price: (ask + bid) / 2, at: k.now()}
	k.mu.Unlock()
	k.logger.Debug("KrakenSource: ticker", "symbol", symbol, "bid", bid, "ask", ask)
}

// krakenPair maps "BTC/USDT" to Kraken's "XBT/USDT".
func krakenPair(symbol string) string {
	base, quote, found := strings.Cut(strings.ToUpper(symbol), "/")
	if base == "BTC" {
		base = "XBT"
	}
	if !found {
		return base
	}
	return base + "/" + quote
}
