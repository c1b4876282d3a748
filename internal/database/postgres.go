package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"tradedesk/internal/model"
)

// PostgresRepository stores trades in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRepository connects to dsn and creates the schema.
func NewPostgresRepository(ctx context.Context, logger *slog.Logger, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &PostgresRepository{Pool: pool, logger: logger}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Database: postgres trade store ready")
	return repo, nil
}

// Migrate creates the trades table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		exchange VARCHAR(50) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(4) NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		usd_amount DOUBLE PRECISION NOT NULL,
		profit DOUBLE PRECISION NOT NULL,
		profit_pct DOUBLE PRECISION NOT NULL,
		strategy VARCHAR(20) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		execution_time DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);`

	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PersistTrade(ctx context.Context, t model.Trade) (int64, error) {
	var id int64
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO trades (timestamp, exchange, symbol, side, amount, price, usd_amount, profit, profit_pct, strategy, confidence, execution_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		t.Timestamp, t.Source, t.Symbol, string(t.Side), t.Amount, t.Price, t.AmountUSD,
		t.Profit, t.ProfitPct, string(t.Strategy), t.Confidence, t.ExecutionTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0, limit)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *PostgresRepository) Stats(ctx context.Context, since time.Time) (model.TradeStats, error) {
	stats, err := scanStats(r.Pool.QueryRow(ctx, `SELECT `+statsColumns+` FROM trades WHERE timestamp >= $1`, since))
	if err != nil {
		return model.TradeStats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) Close() error {
	r.Pool.Close()
	return nil
}
