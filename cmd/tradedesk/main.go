package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"tradedesk/internal/api"
	"tradedesk/internal/arbitrage"
	"tradedesk/internal/cache"
	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/exchange"
	"tradedesk/internal/meme"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/notify"
	signals "tradedesk/internal/signal"
	"tradedesk/internal/strategy"
	"tradedesk/internal/trading"
)

func main() {
	loader := config.NewLoader(".")
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, loader, cfg); err != nil {
		logger.Error("Main: exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, logger *slog.Logger, loader *config.Loader, cfg config.Config) error {
	sources, err := exchange.NewSources(logger, cfg.Exchanges, cfg.Markets)
	if err != nil {
		return err
	}
	collector := exchange.NewCollector(logger, sources, cfg.Trading.Workers, cfg.Trading.FetchTimeout, metrics.ObserveFetch)
	defer collector.Close()

	repo, err := database.Open(ctx, logger, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	notifier, err := notify.NewNotifier(logger, cfg.Notifications)
	if err != nil {
		return err
	}
	defer notifier.Wait()

	selector := strategy.NewSelector(logger, cfg.AutoMode, strategy.NewSimulatedConditions(nil),
		func(from, to model.StrategyDecision) {
			metrics.RecordStrategyChange(string(to.Strategy))
			notifier.StrategyChanged(from, to)
		})

	components := trading.Components{
		Collector: collector,
		Scanner:   arbitrage.NewScanner(logger, cfg.Arbitrage, cfg.Markets),
		Signals:   signals.NewGenerator(logger, cfg.Signals, signals.NewSimulatedIndicators(nil)),
		Selector:  selector,
		Recorder:  trading.NewRecorder(logger, cfg.Trading, repo, trading.NewSimulatedProfit(nil), notifier),
	}
	if cfg.Cache.Enabled {
		quotes, err := cache.NewQuoteCache(ctx, cfg.Cache)
		if err != nil {
			logger.Warn("Main: quote cache unavailable, continuing without it", "addr", cfg.Cache.Addr, "error", err)
		} else {
			defer quotes.Close()
			components.Mirror = quotes
		}
	}
	engine := trading.NewEngine(logger, cfg.Trading, cfg.Markets, components)

	loader.Watch(logger, func(c config.Config) {
		engine.SetMarkets(c.Markets)
		logger.Info("Main: markets reloaded", "count", len(c.Markets))
	})

	radar := meme.NewRadar(logger, cfg.MemeRadar, meme.NewProvider(logger, cfg.MemeRadar))
	handler := api.NewHandler(logger, engine, repo, notifier, radar, sources, cfg.Arbitrage.TopN)
	server := api.NewServer(logger, cfg.Server.Port, api.NewRouter(logger, cfg.Server, handler))

	g, ctx := errgroup.WithContext(ctx)
	symbols := marketSymbols(cfg.Markets)
	for _, src := range sources {
		streamer, ok := src.(exchange.Streamer)
		if !ok || !src.Live() {
			continue
		}
		name := src.GetName()
		g.Go(func() error {
			if err := streamer.StartStream(ctx, symbols); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Main: stream stopped", "source", name, "error", err)
			}
			return nil
		})
	}
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	logger.Info("Main: trading desk started",
		"port", cfg.Server.Port,
		"sources", len(sources),
		"markets", len(cfg.Markets),
		"database", cfg.Database.Driver,
	)
	return g.Wait()
}

func marketSymbols(markets []model.Market) []string {
	out := make([]string, len(markets))
	for i, m := range markets {
		out[i] = m.Symbol
	}
	return out
}
