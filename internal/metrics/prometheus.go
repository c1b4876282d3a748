// Package metrics exposes the desk's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_price_fetch_total",
			Help: "Price fetches by source and outcome",
		},
		[]string{"source", "status"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradedesk_price_fetch_duration_seconds",
			Help:    "Price fetch duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"source"},
	)

	tradeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_trade_count_total",
			Help: "Simulated trades recorded",
		},
		[]string{"symbol", "side", "strategy"},
	)

	tradeProfit = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_trade_profit_usd_total",
			Help: "Sum of positive trade profit in USD",
		},
		[]string{"strategy"},
	)

	tradeLoss = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_trade_loss_usd_total",
			Help: "Sum of trade losses in USD, as a positive number",
		},
		[]string{"strategy"},
	)

	balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_balance_usd",
		Help: "Current simulated balance",
	})

	opportunities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_opportunities",
		Help: "Arbitrage opportunities found in the last cycle",
	})

	signals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradedesk_signals",
		Help: "Signals surfaced in the last cycle",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradedesk_cycle_duration_seconds",
		Help:    "Polling cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	strategyChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_strategy_changes_total",
			Help: "Auto-mode strategy switches by new strategy",
		},
		[]string{"strategy"},
	)
)

// ObserveFetch records one price fetch. Timeouts are reported separately from
// other failures.
func ObserveFetch(source, symbol string, took time.Duration, err error) {
	status := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	fetchTotal.WithLabelValues(source, status).Inc()
	fetchDuration.WithLabelValues(source).Observe(took.Seconds())
}

// RecordTrade counts a trade and its profit or loss.
func RecordTrade(symbol, side, strategy string, profit, newBalance float64) {
	tradeCount.WithLabelValues(symbol, side, strategy).Inc()
	if profit >= 0 {
		tradeProfit.WithLabelValues(strategy).Add(profit)
	} else {
		tradeLoss.WithLabelValues(strategy).Add(-profit)
	}
	balance.Set(newBalance)
}

// SetBalance updates the balance gauge.
func SetBalance(v float64) {
	balance.Set(v)
}

// ObserveCycle records one polling cycle.
func ObserveCycle(took time.Duration, opps, sigs int) {
	cycleDuration.Observe(took.Seconds())
	opportunities.Set(float64(opps))
	signals.Set(float64(sigs))
}

// RecordStrategyChange counts an auto-mode switch.
func RecordStrategyChange(strategy string) {
	strategyChanges.WithLabelValues(strategy).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
