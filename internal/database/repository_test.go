package database

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

var pgDSN string

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		return m.Run()
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("postgres container unavailable, skipping postgres tests: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Printf("could not get container host: %s", err)
		return 1
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Printf("could not get mapped port: %s", err)
		return 1
	}

	pgDSN = "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"
	return m.Run()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleTrades(now time.Time) []model.Trade {
	return []model.Trade{
		{Timestamp: now.Add(-10 * 24 * time.Hour), Source: "kraken", Symbol: "BTC/USDT", Side: model.SideSell,
			Amount: 0.01, Price: 60000, AmountUSD: 600, Profit: 50, ProfitPct: 8, Strategy: model.StrategyArbitrage, Confidence: 80, ExecutionTime: 0.1},
		{Timestamp: now.Add(-2 * time.Hour), Source: "binance", Symbol: "BTC/USDT", Side: model.SideBuy,
			Amount: 0.005, Price: 60000, AmountUSD: 300, Profit: 3, ProfitPct: 1, Strategy: model.StrategyArbitrage, Confidence: 75, ExecutionTime: 0.2},
		{Timestamp: now.Add(-1 * time.Hour), Source: "okx", Symbol: "ETH/USDT", Side: model.SideSell,
			Amount: 0.1, Price: 3000, AmountUSD: 300, Profit: -1.5, ProfitPct: -0.5, Strategy: model.StrategyHybrid, Confidence: 70, ExecutionTime: 0.4},
		{Timestamp: now.Add(-1 * time.Minute), Source: "bybit", Symbol: "SOL/USDT", Side: model.SideSell,
			Amount: 2, Price: 150, AmountUSD: 300, Profit: 6, ProfitPct: 2, Strategy: model.StrategyAISignal, Confidence: 90, ExecutionTime: 0.3},
	}
}

// exerciseRepository runs the same expectations against any store.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, trade := range sampleTrades(now) {
		id, err := repo.PersistTrade(ctx, trade)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	t.Run("recent trades newest first", func(t *testing.T) {
		trades, err := repo.RecentTrades(ctx, 3)
		require.NoError(t, err)
		require.Len(t, trades, 3)
		assert.Equal(t, "SOL/USDT", trades[0].Symbol)
		assert.Equal(t, "ETH/USDT", trades[1].Symbol)
		assert.Equal(t, "BTC/USDT", trades[2].Symbol)
		assert.Equal(t, model.StrategyAISignal, trades[0].Strategy)
		assert.Equal(t, model.SideSell, trades[0].Side)
		assert.True(t, trades[0].Timestamp.Equal(now.Add(-time.Minute)))
	})

	t.Run("stats over seven days", func(t *testing.T) {
		stats, err := repo.Stats(ctx, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalTrades)
		assert.Equal(t, 2, stats.WinningTrades)
		assert.Equal(t, 66.7, stats.WinRate)
		assert.Equal(t, 7.5, stats.TotalProfit)
		assert.Equal(t, 6.0, stats.BestTrade)
		assert.Equal(t, -1.5, stats.WorstTrade)
		assert.Equal(t, 0.83, stats.AvgROI)
		assert.Equal(t, 0.3, stats.AvgExecTime)
	})

	t.Run("stats with no trades", func(t *testing.T) {
		stats, err := repo.Stats(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, model.TradeStats{}, stats)
	})
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(context.Background(), testLogger(), filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestSQLiteRepository_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	ctx := context.Background()

	first, err := NewSQLiteRepository(ctx, testLogger(), path)
	require.NoError(t, err)
	_, err = first.PersistTrade(ctx, sampleTrades(time.Now())[0])
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteRepository(ctx, testLogger(), path)
	require.NoError(t, err)
	defer second.Close()

	trades, err := second.RecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestPostgresRepository(t *testing.T) {
	if pgDSN == "" {
		t.Skip("postgres container not running")
	}
	repo, err := NewPostgresRepository(context.Background(), testLogger(), pgDSN)
	require.NoError(t, err)
	defer repo.Close()

	exerciseRepository(t, repo)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	repo, err := Open(ctx, testLogger(), config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(ctx, testLogger(), config.DatabaseConfig{Driver: "oracle"})
	assert.EqualError(t, err, "unknown database driver: oracle")
}
