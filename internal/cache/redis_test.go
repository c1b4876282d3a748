package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container test skipped in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %s", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func TestQuoteCache(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	c, err := NewQuoteCache(ctx, config.CacheConfig{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	now := time.Now().UTC().Truncate(time.Second)
	quotes := []model.PriceQuote{
		{Symbol: "BTC/USDT", Source: "kraken", Price: 60000, Timestamp: now},
		{Symbol: "BTC/USDT", Source: "binance", Price: 60010, Timestamp: now},
	}
	require.NoError(t, c.SetQuotes(ctx, quotes))

	q, err := c.Latest(ctx, "BTC/USDT", "binance")
	require.NoError(t, err)
	assert.Equal(t, 60010.0, q.Price)
	assert.True(t, q.Timestamp.Equal(now))

	_, err = c.Latest(ctx, "ETH/USDT", "binance")
	assert.ErrorIs(t, err, ErrNotFound)

	ttl, err := c.client.TTL(ctx, latestKey("BTC/USDT", "kraken")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewQuoteCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewQuoteCache(ctx, config.CacheConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "latest:SOL/USDT:okx", latestKey("SOL/USDT", "okx"))
}
