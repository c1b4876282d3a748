package exchange

import (
	"context"
	"errors"
)

var (
	// ErrSourceUnavailable marks a fetch that timed out or failed. The source is
	// left out of the current cycle.
	ErrSourceUnavailable = errors.New("price source unavailable")
	// ErrNoPrice is returned by streaming sources that have not seen a fresh tick.
	ErrNoPrice = errors.New("no fresh price")
)

// PriceSource defines the standard interface for all price sources.
type PriceSource interface {
	GetName() string
	// Live reports whether prices come from a real exchange.
	Live() bool
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// Streamer is implemented by sources that keep a background connection open.
type Streamer interface {
	StartStream(ctx context.Context, symbols []string) error
}
