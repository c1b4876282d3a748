// Package cache mirrors the latest collected quotes into Redis so other
// processes can read them without polling the sources.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

// ErrNotFound is returned when no quote is cached for a key.
var ErrNotFound = errors.New("quote not cached")

// QuoteCache stores quotes under latest:<symbol>:<source> with a TTL.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuoteCache connects to Redis and checks the connection.
func NewQuoteCache(ctx context.Context, cfg config.CacheConfig) (*QuoteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &QuoteCache{client: client, ttl: ttl}, nil
}

func latestKey(symbol, source string) string {
	return fmt.Sprintf("latest:%s:%s", symbol, source)
}

// SetQuotes writes a cycle's quotes in one pipeline.
func (c *QuoteCache) SetQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal quote: %w", err)
		}
		pipe.Set(ctx, latestKey(q.Symbol, q.Source), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set latest quotes: %w", err)
	}
	return nil
}

// Latest returns the cached quote for symbol at source.
func (c *QuoteCache) Latest(ctx context.Context, symbol, source string) (model.PriceQuote, error) {
	raw, err := c.client.Get(ctx, latestKey(symbol, source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.PriceQuote{}, ErrNotFound
	}
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("failed to get quote: %w", err)
	}
	var q model.PriceQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return model.PriceQuote{}, fmt.Errorf("failed to unmarshal quote: %w", err)
	}
	return q, nil
}

func (c *QuoteCache) Close() error {
	return c.client.Close()
}
