package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"tradedesk/internal/model"
)

// FetchObserver is notified once per fetch attempt. err is nil on success.
type FetchObserver func(source, symbol string, took time.Duration, err error)

type fetchJob struct {
	ctx     context.Context
	source  PriceSource
	symbol  string
	results chan<- fetchResult
}

type fetchResult struct {
	source string
	symbol string
	price  float64
	err    error
}

// Collector fans price fetches out over a fixed, long-lived worker pool.
type Collector struct {
	logger   *slog.Logger
	sources  []PriceSource
	timeout  time.Duration
	observer FetchObserver

	jobs      chan fetchJob
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewCollector starts workers goroutines that serve every later Collect call.
func NewCollector(logger *slog.Logger, sources []PriceSource, workers int, timeout time.Duration, observer FetchObserver) *Collector {
	if workers <= 0 {
		workers = 1
	}
	c := &Collector{
		logger:   logger,
		sources:  sources,
		timeout:  timeout,
		observer: observer,
		jobs:     make(chan fetchJob),
		done:     make(chan struct{}),
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

func (c *Collector) worker() {
	defer c.wg.Done()
	for job := range c.jobs {
		job.results <- c.fetch(job)
	}
}

// fetch bounds a single source call by the collector timeout even if the
// source ignores its context.
func (c *Collector) fetch(job fetchJob) fetchResult {
	ctx, cancel := context.WithTimeout(job.ctx, c.timeout)
	defer cancel()

	start := time.Now()
	type reply struct {
		price float64
		err   error
	}
	replyCh := make(chan reply, 1)
	go func() {
		p, err := job.source.FetchPrice(ctx, job.symbol)
		replyCh <- reply{p, err}
	}()

	res := fetchResult{source: job.source.GetName(), symbol: job.symbol}
	select {
	case r := <-replyCh:
		res.price, res.err = r.price, r.err
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && (res.price <= 0 || math.IsNaN(res.price) || math.IsInf(res.price, 0)) {
		res.err = fmt.Errorf("invalid price %v", res.price)
	}
	if res.err != nil {
		res.err = fmt.Errorf("%s %s: %w: %w", res.source, res.symbol, ErrSourceUnavailable, res.err)
	}
	if c.observer != nil {
		c.observer(res.source, res.symbol, time.Since(start), res.err)
	}
	return res
}

// Collect fetches every symbol from every source. Sources that fail or time out
// are left out of the returned book for that symbol; no stale price is substituted.
func (c *Collector) Collect(ctx context.Context, symbols []string) (model.PriceBook, []model.PriceQuote) {
	total := len(symbols) * len(c.sources)
	results := make(chan fetchResult, total)

	submitted := 0
submit:
	for _, symbol := range symbols {
		for _, src := range c.sources {
			select {
			case c.jobs <- fetchJob{ctx: ctx, source: src, symbol: symbol, results: results}:
				submitted++
			case <-ctx.Done():
				break submit
			case <-c.done:
				break submit
			}
		}
	}

	book := make(model.PriceBook, len(symbols))
	quotes := make([]model.PriceQuote, 0, submitted)
	now := time.Now()
	for i := 0; i < submitted; i++ {
		r := <-results
		if r.err != nil {
			c.logger.Warn("Collector: source excluded from cycle", "source", r.source, "symbol", r.symbol, "error", r.err)
			continue
		}
		book.Set(r.symbol, r.source, r.price)
		quotes = append(quotes, model.PriceQuote{Symbol: r.symbol, Source: r.source, Price: r.price, Timestamp: now})
	}
	return book, quotes
}

// Close stops the workers. Collect must not be called concurrently with Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.jobs)
		c.wg.Wait()
	})
}
