package model

// PriceBook maps symbol -> source -> price for one polling cycle.
type PriceBook map[string]map[string]float64

// Set records a price, creating the symbol entry on first use.
func (b PriceBook) Set(symbol, source string, price float64) {
	if b[symbol] == nil {
		b[symbol] = make(map[string]float64)
	}
	b[symbol][source] = price
}

// Mean is the average price of symbol across sources. ok is false when no
// source reported it.
func (b PriceBook) Mean(symbol string) (mean float64, ok bool) {
	prices := b[symbol]
	if len(prices) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices)), true
}

