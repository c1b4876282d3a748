package model

// Portfolio holds the simulated account counters. WinRate is derived from the
// trade counters whenever a copy leaves the owner, see Snapshot.
type Portfolio struct {
	Balance          float64 `json:"balance"`
	ProfitLive       float64 `json:"profit_live"`
	Profit24h        float64 `json:"profit_24h"`
	TotalTrades      int     `json:"total_trades"`
	SuccessfulTrades int     `json:"successful_trades"`
	WinRate          float64 `json:"win_rate"`
}

// Snapshot returns a copy with WinRate recomputed from the counters.
func (p Portfolio) Snapshot() Portfolio {
	p.WinRate = WinRatePct(p.SuccessfulTrades, p.TotalTrades)
	return p
}

// WinRatePct is 100*successful/total, or 0 when no trades were recorded.
func WinRatePct(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
