package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

// Repository defines the standard interface for trade store operations.
// The store is append-only.
type Repository interface {
	// PersistTrade stores the trade and returns the id the store assigned.
	PersistTrade(ctx context.Context, trade model.Trade) (int64, error)
	// RecentTrades returns at most limit trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]model.Trade, error)
	// Stats aggregates the trades recorded at or after since.
	Stats(ctx context.Context, since time.Time) (model.TradeStats, error)
	Close() error
}

// Open connects to the configured store and creates its schema.
func Open(ctx context.Context, logger *slog.Logger, cfg config.DatabaseConfig) (Repository, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3":
		return NewSQLiteRepository(ctx, logger, cfg.Path)
	case "postgres":
		return NewPostgresRepository(ctx, logger, cfg.DSN())
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

const statsColumns = `
	COUNT(*),
	COALESCE(SUM(CASE WHEN profit > 0 THEN 1 ELSE 0 END), 0),
	COALESCE(AVG(profit_pct), 0),
	COALESCE(SUM(profit), 0),
	COALESCE(MAX(profit), 0),
	COALESCE(MIN(profit), 0),
	COALESCE(AVG(execution_time), 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(row scanner) (model.TradeStats, error) {
	var s model.TradeStats
	if err := row.Scan(&s.TotalTrades, &s.WinningTrades, &s.AvgROI, &s.TotalProfit,
		&s.BestTrade, &s.WorstTrade, &s.AvgExecTime); err != nil {
		return model.TradeStats{}, err
	}
	s.WinRate = model.Round(model.WinRatePct(s.WinningTrades, s.TotalTrades), 1)
	s.AvgROI = model.Round(s.AvgROI, 2)
	s.TotalProfit = model.Round(s.TotalProfit, 2)
	s.BestTrade = model.Round(s.BestTrade, 2)
	s.WorstTrade = model.Round(s.WorstTrade, 2)
	s.AvgExecTime = model.Round(s.AvgExecTime, 3)
	return s, nil
}

func scanTrade(row scanner) (model.Trade, error) {
	var (
		t        model.Trade
		side     string
		strategy string
	)
	err := row.Scan(&t.ID, &t.Timestamp, &t.Source, &t.Symbol, &side, &t.Amount, &t.Price,
		&t.AmountUSD, &t.Profit, &t.ProfitPct, &strategy, &t.Confidence, &t.ExecutionTime)
	if err != nil {
		return model.Trade{}, err
	}
	t.Side = model.Side(side)
	t.Strategy = model.StrategyName(strategy)
	return t, nil
}

const tradeColumns = `id, timestamp, exchange, symbol, side, amount, price, usd_amount, profit, profit_pct, strategy, confidence, execution_time`
