package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"tradedesk/internal/model"
)

// SQLiteRepository stores trades in a local SQLite file.
type SQLiteRepository struct {
	logger *slog.Logger
	db     *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at path in WAL mode.
func NewSQLiteRepository(ctx context.Context, logger *slog.Logger, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{logger: logger, db: db}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database: sqlite trade store ready", "path", path)
	return repo, nil
}

// Migrate creates the trades table if it does not exist.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		usd_amount REAL NOT NULL,
		profit REAL NOT NULL,
		profit_pct REAL NOT NULL,
		strategy TEXT NOT NULL,
		confidence REAL NOT NULL,
		execution_time REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PersistTrade(ctx context.Context, t model.Trade) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (timestamp, exchange, symbol, side, amount, price, usd_amount, profit, profit_pct, strategy, confidence, execution_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Timestamp.UTC(), t.Source, t.Symbol, string(t.Side), t.Amount, t.Price, t.AmountUSD,
		t.Profit, t.ProfitPct, string(t.Strategy), t.Confidence, t.ExecutionTime)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
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

func (r *SQLiteRepository) Stats(ctx context.Context, since time.Time) (model.TradeStats, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM trades WHERE timestamp >= ?`, since.UTC())
	stats, err := scanStats(row)
	if err != nil {
		return model.TradeStats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
