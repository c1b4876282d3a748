package arbitrage

import (
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"tradedesk/internal/config"
	"tradedesk/internal/model"
)

const maxConfidence = 95.0

// Scanner finds cross-source spreads in a price book. It holds no per-cycle
// state; FindOpportunities is a pure function of its inputs and the current
// market table.
type Scanner struct {
	logger  *slog.Logger
	cfg     config.ArbitrageConfig
	markets atomic.Pointer[map[string]model.Market]
	now     func() time.Time
}

// NewScanner creates a new Scanner for the given markets.
func NewScanner(logger *slog.Logger, cfg config.ArbitrageConfig, markets []model.Market) *Scanner {
	s := &Scanner{logger: logger, cfg: cfg, now: time.Now}
	s.SetMarkets(markets)
	return s
}

// SetMarkets swaps the per-symbol thresholds used by later scans.
func (s *Scanner) SetMarkets(markets []model.Market) {
	table := make(map[string]model.Market, len(markets))
	for _, m := range markets {
		table[m.Symbol] = m
	}
	s.markets.Store(&table)
}

// market returns the configured market for symbol. Only a negative threshold
// falls back to the default; zero is a valid threshold.
func (s *Scanner) market(symbol string) model.Market {
	if m, ok := (*s.markets.Load())[symbol]; ok {
		if m.MinProfitPct < 0 {
			m.MinProfitPct = s.cfg.DefaultMinProfitPct
		}
		if m.Priority <= 0 {
			m.Priority = 1
		}
		return m
	}
	return model.Market{Symbol: symbol, MinProfitPct: s.cfg.DefaultMinProfitPct, Priority: 1}
}

// FindOpportunities returns every (buy, sell) source pair whose spread exceeds
// the symbol's minimum profit, ranked by profit_pct weighted by market priority.
// It never panics; on an internal failure it logs and returns nil.
func (s *Scanner) FindOpportunities(prices model.PriceBook, balance float64) (opps []model.Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scanner: recovered from panic", "panic", r)
			opps = nil
		}
	}()

	now := s.now()
	for symbol, sources := range prices {
		if len(sources) < 2 {
			continue
		}
		m := s.market(symbol)
		size := s.positionSize(balance, m.AllocationPct)

		for buySource, buyPrice := range sources {
			if !validPrice(buyPrice) {
				continue
			}
			for sellSource, sellPrice := range sources {
				if buySource == sellSource || !validPrice(sellPrice) {
					continue
				}
				profitPct := (sellPrice - buyPrice) / buyPrice * 100
				if profitPct <= m.MinProfitPct {
					continue
				}
				opps = append(opps, model.Opportunity{
					Symbol:       symbol,
					Name:         m.Name,
					BuySource:    buySource,
					SellSource:   sellSource,
					BuyPrice:     buyPrice,
					SellPrice:    sellPrice,
					ProfitPct:    model.Round(profitPct, 3),
					ProfitUSD:    model.Round((sellPrice-buyPrice)*(size/buyPrice), 2),
					PositionSize: model.Round(size, 2),
					Priority:     m.Priority,
					Confidence:   model.Clamp(70+profitPct*5, 0, maxConfidence),
					Timestamp:    now,
				})
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		ki, kj := opps[i].ProfitPct*opps[i].Priority, opps[j].ProfitPct*opps[j].Priority
		if ki != kj {
			return ki > kj
		}
		if opps[i].Symbol != opps[j].Symbol {
			return opps[i].Symbol < opps[j].Symbol
		}
		if opps[i].BuySource != opps[j].BuySource {
			return opps[i].BuySource < opps[j].BuySource
		}
		return opps[i].SellSource < opps[j].SellSource
	})

	if len(opps) > 0 {
		s.logger.Debug("Scanner: opportunities found", "count", len(opps), "best", opps[0].ProfitPct)
	}
	return opps
}

// positionSize is balance*allocation%, clamped to the configured USD band.
func (s *Scanner) positionSize(balance, allocationPct float64) float64 {
	size := balance * allocationPct / 100
	if math.IsNaN(size) {
		size = 0
	}
	return math.Max(s.cfg.MinPositionUSD, math.Min(size, s.cfg.MaxPositionUSD))
}

// Top returns at most n opportunities from an already ranked list.
func Top(opps []model.Opportunity, n int) []model.Opportunity {
	if n < 0 {
		n = 0
	}
	if len(opps) > n {
		return opps[:n]
	}
	return opps
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
