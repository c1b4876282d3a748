package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
	}
}

func (c *capture) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.bodies...)
}

func TestNotifier_TradeExecuted(t *testing.T) {
	var got capture
	srv := httptest.NewServer(got.handler(t))
	defer srv.Close()

	n, err := NewNotifier(testLogger(), config.NotificationConfig{Webhooks: []string{srv.URL}, Timeout: time.Second})
	require.NoError(t, err)

	n.TradeExecuted(model.Trade{Symbol: "BTC/USDT", Side: model.SideBuy, AmountUSD: 150, Source: "kraken", Strategy: model.StrategyManual})
	n.Wait()

	bodies := got.all()
	require.Len(t, bodies, 1)
	body := bodies[0]
	assert.Equal(t, "trade_executed", body["type"])
	assert.Contains(t, body["message"], "buy BTC/USDT 150.00 USD on kraken")
	assert.NotEmpty(t, body["timestamp"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", data["symbol"])
}

func TestNotifier_StrategyChanged(t *testing.T) {
	var got capture
	srv := httptest.NewServer(got.handler(t))
	defer srv.Close()

	n, err := NewNotifier(testLogger(), config.NotificationConfig{})
	require.NoError(t, err)
	require.NoError(t, n.Register(srv.URL))

	n.StrategyChanged(
		model.StrategyDecision{Strategy: model.StrategyArbitrage},
		model.StrategyDecision{Strategy: model.StrategyHybrid, Confidence: 81},
	)
	n.Wait()

	bodies := got.all()
	require.Len(t, bodies, 1)
	assert.Equal(t, "strategy_changed", bodies[0]["type"])
	assert.Equal(t, "Strategy changed from arbitrage to hybrid (81% confidence)", bodies[0]["message"])
}

func TestNotifier_Register(t *testing.T) {
	n, err := NewNotifier(testLogger(), config.NotificationConfig{})
	require.NoError(t, err)

	for _, bad := range []string{"", "ftp://example.com/hook", "example.com/hook", "http://", "://x"} {
		assert.ErrorIs(t, n.Register(bad), ErrInvalidWebhook, bad)
	}
	require.NoError(t, n.Register("https://example.com/hook"))
	require.NoError(t, n.Register("https://example.com/hook"))
	assert.Equal(t, []string{"https://example.com/hook"}, n.Webhooks())

	_, err = NewNotifier(testLogger(), config.NotificationConfig{Webhooks: []string{"nope"}})
	assert.ErrorIs(t, err, ErrInvalidWebhook)
}

func TestNotifier_HistoryIsBounded(t *testing.T) {
	n, err := NewNotifier(testLogger(), config.NotificationConfig{HistorySize: 3})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		n.Notify(EventTradeExecuted, i, "")
	}

	h := n.History(0)
	require.Len(t, h, 3)
	assert.Equal(t, 4, h[0].Data, "newest first")
	assert.Equal(t, 2, h[2].Data)
	assert.Len(t, n.History(2), 2)
}

func TestNotifier_FailingWebhookDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewNotifier(testLogger(), config.NotificationConfig{Webhooks: []string{srv.URL, "http://127.0.0.1:1/hook"}, Timeout: 500 * time.Millisecond})
	require.NoError(t, err)

	n.Notify(EventTradeExecuted, nil, "x")
	n.Wait()
	assert.Len(t, n.History(10), 1)
}
