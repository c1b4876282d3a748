package exchange

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
	name string
}

func (m *MockSource) GetName() string { return m.name }

func (m *MockSource) Live() bool { return false }

func (m *MockSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

// blockingSource never answers until its context is done or release is closed.
type blockingSource struct {
	name    string
	release chan struct{}
}

func (b *blockingSource) GetName() string { return b.name }

func (b *blockingSource) Live() bool { return false }

func (b *blockingSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	<-b.release
	return 1, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCollector_Collect(t *testing.T) {
	kraken := &MockSource{name: "kraken"}
	kraken.On("FetchPrice", mock.Anything, "BTC/USDT").Return(60000.0, nil)
	kraken.On("FetchPrice", mock.Anything, "ETH/USDT").Return(3000.0, nil)

	binance := &MockSource{name: "binance"}
	binance.On("FetchPrice", mock.Anything, "BTC/USDT").Return(60100.0, nil)
	binance.On("FetchPrice", mock.Anything, "ETH/USDT").Return(0.0, errors.New("boom"))

	c := NewCollector(testLogger(), []PriceSource{kraken, binance}, 3, time.Second, nil)
	defer c.Close()

	book, quotes := c.Collect(context.Background(), []string{"BTC/USDT", "ETH/USDT"})

	assert.Equal(t, map[string]float64{"kraken": 60000, "binance": 60100}, book["BTC/USDT"])
	assert.Equal(t, map[string]float64{"kraken": 3000}, book["ETH/USDT"], "failed source must be excluded, not defaulted")
	assert.Len(t, quotes, 3)
	kraken.AssertExpectations(t)
	binance.AssertExpectations(t)
}

func TestCollector_TimeoutExcludesSource(t *testing.T) {
	slow := &blockingSource{name: "slow", release: make(chan struct{})}
	defer close(slow.release)

	fast := &MockSource{name: "fast"}
	fast.On("FetchPrice", mock.Anything, "BTC/USDT").Return(100.0, nil)

	var mu sync.Mutex
	var failures []string
	observer := func(source, symbol string, took time.Duration, err error) {
		if err != nil {
			mu.Lock()
			failures = append(failures, source)
			mu.Unlock()
			assert.ErrorIs(t, err, ErrSourceUnavailable)
		}
	}

	c := NewCollector(testLogger(), []PriceSource{slow, fast}, 2, 20*time.Millisecond, observer)
	defer c.Close()

	start := time.Now()
	book, _ := c.Collect(context.Background(), []string{"BTC/USDT"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, map[string]float64{"fast": 100}, book["BTC/USDT"])
	mu.Lock()
	assert.Equal(t, []string{"slow"}, failures)
	mu.Unlock()
}

func TestCollector_RejectsInvalidPrices(t *testing.T) {
	tests := []struct {
		name  string
		price float64
	}{
		{name: "zero", price: 0},
		{name: "negative", price: -5},
		{name: "nan", price: math.NaN()},
		{name: "inf", price: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &MockSource{name: "bad"}
			src.On("FetchPrice", mock.Anything, "BTC/USDT").Return(tt.price, nil)

			c := NewCollector(testLogger(), []PriceSource{src}, 1, time.Second, nil)
			defer c.Close()

			book, quotes := c.Collect(context.Background(), []string{"BTC/USDT"})
			assert.Empty(t, book["BTC/USDT"])
			assert.Empty(t, quotes)
		})
	}
}

func TestCollector_CloseIsIdempotent(t *testing.T) {
	c := NewCollector(testLogger(), nil, 2, time.Second, nil)
	c.Close()
	require.NotPanics(t, c.Close)
}

func TestSimulatedSource_FetchPrice(t *testing.T) {
	src := NewSimulatedSource("okx", map[string]float64{"BTC/USDT": 43000}, nil)

	for i := 0; i < 100; i++ {
		p, err := src.FetchPrice(context.Background(), "BTC/USDT")
		require.NoError(t, err)
		assert.InDelta(t, 43000, p, 43000*0.02)
	}

	p, err := src.FetchPrice(context.Background(), "UNKNOWN/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 1000, p, 1000*0.02)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.FetchPrice(ctx, "BTC/USDT")
	assert.Error(t, err)
}
